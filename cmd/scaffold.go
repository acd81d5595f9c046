package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold",
	Short: "Interactively create the upload hierarchy for a collection trip",
	Long: `Scaffold asks for the collection dates, the sites visited on each date
and the photographers, then creates the folder tree 'process --sites'
expects, including one <site>.yaml descriptor per site:

  <target>/<site>.yaml
  <target>/YYYY-MM-DD/<site>/<photographer>/

Dates can be given as a range (first and last day) or as an explicit
comma-separated list.`,
	RunE: runScaffold,
}

func init() {
	rootCmd.AddCommand(scaffoldCmd)

	scaffoldCmd.Flags().StringP("target", "t", "", "Folder to create the hierarchy in (required)")
	scaffoldCmd.MarkFlagRequired("target")
}

const scaffoldDateLayout = "2006-01-02"

func runScaffold(cmd *cobra.Command, args []string) error {
	target := mustGetString(cmd, "target")
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("could not create target folder: %w", err)
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	dates, err := promptDates(in, out)
	if err != nil {
		return err
	}

	photographers, err := promptList(in, out, "Photographers (comma-separated, may be empty): ")
	if err != nil {
		return err
	}

	described := map[string]bool{}
	for _, date := range dates {
		sites, err := promptList(in, out,
			fmt.Sprintf("Sites visited on %s (comma-separated): ", date.Format(scaffoldDateLayout)))
		if err != nil {
			return err
		}

		for _, site := range sites {
			if !described[site] {
				if err := promptSiteYaml(in, out, target, site); err != nil {
					return err
				}
				described[site] = true
			}

			siteDir := filepath.Join(target, date.Format(scaffoldDateLayout), site)
			dirs := []string{siteDir}
			for _, p := range photographers {
				dirs = append(dirs, filepath.Join(siteDir, p))
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("could not create %s: %w", dir, err)
				}
			}
		}
	}

	fmt.Fprintln(out, "\nCreated structure:")
	return printTree(out, target)
}

// promptDates asks for a date range or an explicit list.
func promptDates(in *bufio.Reader, out io.Writer) ([]time.Time, error) {
	mode, err := prompt(in, out, "Dates as [r]ange or [l]ist? ")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(mode) {
	case "r", "range":
		first, err := promptDate(in, out, "First day (YYYY-MM-DD): ")
		if err != nil {
			return nil, err
		}
		last, err := promptDate(in, out, "Last day (YYYY-MM-DD): ")
		if err != nil {
			return nil, err
		}
		if last.Before(first) {
			return nil, fmt.Errorf("last day is before the first day")
		}
		var dates []time.Time
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
		return dates, nil

	case "l", "list":
		items, err := promptList(in, out, "Dates (comma-separated YYYY-MM-DD): ")
		if err != nil {
			return nil, err
		}
		var dates []time.Time
		for _, item := range items {
			d, err := time.Parse(scaffoldDateLayout, item)
			if err != nil {
				return nil, fmt.Errorf("%q is not a date: expected YYYY-MM-DD", item)
			}
			dates = append(dates, d)
		}
		if len(dates) == 0 {
			return nil, fmt.Errorf("at least one date is required")
		}
		return dates, nil
	}
	return nil, fmt.Errorf("answer r or l")
}

// promptSiteYaml asks for the site attributes and writes <site>.yaml.
func promptSiteYaml(in *bufio.Reader, out io.Writer, target, site string) error {
	city, err := prompt(in, out, fmt.Sprintf("City of site %q: ", site))
	if err != nil {
		return err
	}
	if city == "" {
		return fmt.Errorf("site %q needs a city", site)
	}

	attrs := map[string]string{"city": city}
	for {
		pair, err := prompt(in, out, "Extra attribute key=value (empty to finish): ")
		if err != nil {
			return err
		}
		if pair == "" {
			break
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			fmt.Fprintln(out, "expected key=value")
			continue
		}
		attrs[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	data, err := yaml.Marshal(attrs)
	if err != nil {
		return err
	}
	path := filepath.Join(target, site+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptDate(in *bufio.Reader, out io.Writer, question string) (time.Time, error) {
	s, err := prompt(in, out, question)
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.Parse(scaffoldDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date: expected YYYY-MM-DD", s)
	}
	return d, nil
}

func promptList(in *bufio.Reader, out io.Writer, question string) ([]string, error) {
	s, err := prompt(in, out, question)
	if err != nil {
		return nil, err
	}
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

// printTree prints the created hierarchy, folders only plus yaml files.
func printTree(out io.Writer, root string) error {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() || strings.HasSuffix(path, ".yaml") {
			rel, _ := filepath.Rel(root, path)
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(paths)
	for _, p := range paths {
		depth := strings.Count(p, string(filepath.Separator))
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth), filepath.Base(p))
	}
	return nil
}
