package shrink

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

const mib = int64(1 << 20)

func sizedItems(sizes ...int64) []Item {
	items := make([]Item, len(sizes))
	for i, s := range sizes {
		items[i] = Item{ID: int64(i + 1), Size: s}
	}
	return items
}

func TestNewPlan_CapSearch(t *testing.T) {
	// 1+2+3+4+10 MiB against a 12 MiB budget with a 0.5 floor: the
	// largest fitting cap is exactly 2 MiB, yielding 1+2+2+2+5.
	items := sizedItems(1*mib, 2*mib, 3*mib, 4*mib, 10*mib)

	p, err := NewPlan(items, 12*mib, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	if p.Cap != 2*mib {
		t.Errorf("expected cap of 2 MiB, got %d", p.Cap)
	}
	if p.Total != 12*mib {
		t.Errorf("expected projected total of 12 MiB, got %d", p.Total)
	}
	if p.Deficit != 0 || p.NoWork {
		t.Errorf("plan should be feasible and non-trivial: %+v", p)
	}

	want := []int64{1 * mib, 2 * mib, 2 * mib, 2 * mib, 5 * mib}
	for i, it := range p.Items {
		if it.Target != want[i] {
			t.Errorf("item %d: target %d, want %d", i, it.Target, want[i])
		}
	}
	if p.ShrinkCount() != 3 {
		t.Errorf("expected 3 images needing compression, got %d", p.ShrinkCount())
	}
}

func TestNewPlan_AlreadyFits(t *testing.T) {
	items := sizedItems(1*mib, 2*mib)

	p, err := NewPlan(items, 10*mib, 0.05)
	if err != nil {
		t.Fatal(err)
	}

	if !p.NoWork {
		t.Error("plan must report that no compression is needed")
	}
	for _, it := range p.Items {
		if it.Target != it.Size {
			t.Errorf("no target may change when the originals fit: %+v", it)
		}
	}
}

func TestNewPlan_InfeasibleReportsDeficit(t *testing.T) {
	// floors at 0.5 sum to 5 MiB which already breaks a 4 MiB budget
	items := sizedItems(4*mib, 6*mib)

	p, err := NewPlan(items, 4*mib, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	if p.Deficit != 1*mib {
		t.Errorf("expected a 1 MiB deficit, got %d", p.Deficit)
	}
	if p.Total != 5*mib {
		t.Errorf("expected minimal total of 5 MiB, got %d", p.Total)
	}
	for i, it := range p.Items {
		if it.Target != floorFor(it.Size, 0.5) {
			t.Errorf("item %d must target its floor, got %d", i, it.Target)
		}
	}
}

func TestNewPlan_CapIsMaximal(t *testing.T) {
	items := sizedItems(3*mib, 5*mib, 8*mib)
	budget := 10 * mib

	p, err := NewPlan(items, budget, 0.05)
	if err != nil {
		t.Fatal(err)
	}

	if p.Total > budget {
		t.Fatalf("total %d exceeds budget %d", p.Total, budget)
	}
	if over := totalAt(p.Items, p.Cap+1, 0.05); over <= budget {
		t.Errorf("cap %d is not maximal: cap+1 still fits (%d <= %d)", p.Cap, over, budget)
	}
}

func TestNewPlan_RejectsBadInputs(t *testing.T) {
	if _, err := NewPlan(nil, 0, 0.05); err == nil {
		t.Error("zero budget must be rejected")
	}
	if _, err := NewPlan(nil, mib, 0); err == nil {
		t.Error("zero floor ratio must be rejected")
	}
	if _, err := NewPlan(nil, mib, 1.5); err == nil {
		t.Error("floor ratio above 1 must be rejected")
	}
}

func TestFloorRoundsUp(t *testing.T) {
	if got := floorFor(101, 0.05); got != 6 {
		t.Errorf("ceil(101*0.05) = 6, got %d", got)
	}
	if got := floorFor(1, 0.05); got != 1 {
		t.Errorf("floor must never drop below one byte, got %d", got)
	}
}

func writeTestJPEG(t *testing.T, path string, w, h, quality int) int64 {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 7 % 256), uint8(y * 13 % 256), uint8((x + y) % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return int64(buf.Len())
}

func TestApply_CompressesToTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jpg")
	size := writeTestJPEG(t, path, 800, 600, 95)

	target := size / 2
	plan := &Plan{Items: []Item{{ID: 1, Path: path, Size: size, Target: target}}}

	outcomes, err := Apply(context.Background(), plan, EncodeOptions{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}

	out := outcomes[0]
	if out.Skipped {
		t.Fatalf("image above target must be compressed: %+v", out)
	}
	if out.NewSize > target {
		t.Errorf("compressed size %d exceeds target %d", out.NewSize, target)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != out.NewSize {
		t.Errorf("reported size %d does not match disk %d", out.NewSize, st.Size())
	}
}

func TestApply_LeavesFittingImagesAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.jpg")
	size := writeTestJPEG(t, path, 100, 100, 60)

	plan := &Plan{Items: []Item{{ID: 1, Path: path, Size: size, Target: size}}}

	outcomes, err := Apply(context.Background(), plan, EncodeOptions{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !outcomes[0].Skipped {
		t.Error("image at its target must not be touched")
	}

	st, _ := os.Stat(path)
	if st.Size() != size {
		t.Errorf("file changed on disk: %d != %d", st.Size(), size)
	}
}

func TestApply_UnreadableImageSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	plan := &Plan{Items: []Item{{ID: 1, Path: path, Size: 12, Target: 6}}}

	outcomes, err := Apply(context.Background(), plan, EncodeOptions{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !outcomes[0].Skipped || outcomes[0].Err == nil {
		t.Errorf("undecodable image must be skipped with its error recorded: %+v", outcomes[0])
	}
}

func TestHistogram_Binning(t *testing.T) {
	sizes := []int64{100, 100, 200, 900}
	h := NewHistogram("t", sizes)

	var total int
	for _, c := range h.Counts {
		total += c
	}
	if total != len(sizes) {
		t.Errorf("every size must land in exactly one bin: %d != %d", total, len(sizes))
	}
	if h.Min != 100 || h.Max != 900 {
		t.Errorf("unexpected range [%d, %d]", h.Min, h.Max)
	}
	if h.Counts[0] != 2 {
		t.Errorf("both minimum sizes belong in the first bin, got %d", h.Counts[0])
	}
	if h.Counts[histogramBins-1] != 1 {
		t.Errorf("the maximum belongs in the last bin, got %d", h.Counts[histogramBins-1])
	}
}

func TestHistogram_EmptyAndUniform(t *testing.T) {
	if h := NewHistogram("empty", nil); len(h.SVG()) == 0 {
		t.Error("empty histogram must still render")
	}

	h := NewHistogram("uniform", []int64{500, 500, 500})
	if h.Counts[0] != 3 {
		t.Errorf("identical sizes collapse into the first bin, got %v", h.Counts)
	}
}

func TestWriteDistributions(t *testing.T) {
	dir := t.TempDir()
	err := WriteDistributions(dir, "_IMAGE_SIZE_DISTRIBUTIONS",
		[]int64{mib, 2 * mib, 10 * mib}, []int64{mib, 2 * mib, 2 * mib})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"PRE_compress_image_size_dist.svg", "POST_compress_image_size_dist.svg"} {
		data, err := os.ReadFile(filepath.Join(dir, "_IMAGE_SIZE_DISTRIBUTIONS", name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if !strings.HasPrefix(string(data), "<svg") {
			t.Errorf("%s is not an SVG document", name)
		}
	}
}
