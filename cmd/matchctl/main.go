// matchctl 离线打分工具：读取 JSON/YAML 格式的档案与岗位，输出排序后的匹配结果。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	appConfig "match-engine-go/internal/config"
	"match-engine-go/internal/matching"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "matchctl:", err)
		os.Exit(1)
	}
}

type options struct {
	jobs      string
	profiles  string
	profileID string
	config    string
	explain   bool
	format    string
	verbose   bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := pflag.NewFlagSet("matchctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.jobs, "jobs", "j", "internal/matching/testdata/jobs.json", "jobs file (.json/.yaml)")
	fs.StringVarP(&opts.profiles, "profiles", "p", "internal/matching/testdata/profiles.json", "profiles file (.json/.yaml)")
	fs.StringVar(&opts.profileID, "profile-id", "", "only score the profile with this id")
	fs.StringVarP(&opts.config, "config", "c", "", "config file; its matching section overrides the default policy")
	fs.BoolVar(&opts.explain, "explain", false, "include the score breakdown")
	fs.StringVarP(&opts.format, "format", "f", "table", "output format: table or json")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log per-job diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	policy := matching.DefaultPolicy()
	if opts.config != "" {
		cfg, err := appConfig.LoadConfig(opts.config)
		if err != nil {
			return err
		}
		policy = cfg.Matching
	}

	log := zerolog.Nop()
	if opts.verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).Level(zerolog.DebugLevel)
	}
	engine, err := matching.New(matching.WithPolicy(policy), matching.WithLogger(log))
	if err != nil {
		return err
	}

	jobs, err := readRecords(opts.jobs)
	if err != nil {
		return err
	}
	profiles, err := readRecords(opts.profiles)
	if err != nil {
		return err
	}

	type output struct {
		ProfileID string                 `json:"profile_id"`
		Count     int                    `json:"count"`
		Matches   []matching.MatchResult `json:"matches"`
	}
	var out []output
	for i, p := range profiles {
		id := recordID(p, i)
		if opts.profileID != "" && id != opts.profileID {
			continue
		}
		var results []matching.MatchResult
		if opts.explain {
			results, err = engine.Explain(ctx, p, jobs)
		} else {
			results, err = engine.Match(ctx, p, jobs)
		}
		if err != nil {
			return fmt.Errorf("profile %s: %w", id, err)
		}
		if results == nil {
			results = []matching.MatchResult{}
		}
		out = append(out, output{ProfileID: id, Count: len(results), Matches: results})
	}
	if opts.profileID != "" && len(out) == 0 {
		return fmt.Errorf("profile %q not found in %s", opts.profileID, opts.profiles)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tJOB\tTITLE\tSCORE\tMATCH%")
	for _, o := range out {
		if o.Count == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", o.ProfileID)
			continue
		}
		for _, m := range o.Matches {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%d\n", o.ProfileID, m.ID, m.Title, m.MatchScore, m.MatchPercentage)
			if m.Breakdown != nil {
				b := m.Breakdown
				fmt.Fprintf(tw, "\t\ttier=%s density=%.2f skills=%.2f exp=%.2f salary=%.2f loc=%.2f title=%.2f\t\t\n",
					b.Tier, b.Density, b.Skills, b.Experience, b.Salary, b.Location, b.TitleMultiplier)
			}
		}
	}
	return tw.Flush()
}

// readRecords 按扩展名解析 JSON 或 YAML 记录列表
func readRecords(path string) ([]matching.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	records := make([]matching.Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, matching.Record(r))
	}
	return records, nil
}

func recordID(r matching.Record, index int) string {
	for _, k := range []string{"id", "_id", "profile_id"} {
		if v, ok := r[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("#%d", index)
}
