package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/photokeep/photosync/internal/config"
	"github.com/photokeep/photosync/pkg/conflicts"
	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/reconcile"
)

// NewDiscoverCommand creates the discover command.
func (a *App) NewDiscoverCommand() *cobra.Command {
	var (
		sinceStr    string
		serviceKeys []string
		fullScan    bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Pull changed photos from every service and merge them",
		Long: `Discover lists photos created or changed on each registered service since
its last checkpoint, merges the observations into canonical records, and
records any disagreements as conflicts.

Re-running discover over the same observations is safe: no duplicate
photos and no duplicate conflicts are created.`,
		Example: `  photosync discover                      # everything since the last run
  photosync discover --since 24h          # override the checkpoint window
  photosync discover --service archive    # one service only
  photosync discover --full-scan          # ignore checkpoints entirely`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, err := parseSince(sinceStr)
			if err != nil {
				return err
			}
			ps, err := a.PhotoSync()
			if err != nil {
				return err
			}
			report, err := ps.Discover(a.commandContext(cmd), reconcile.DiscoverOptions{
				Since:    since,
				Services: serviceKeys,
				FullScan: fullScan,
			})
			if err != nil {
				return err
			}
			return a.renderReport(cmd, report)
		},
	}

	cmd.Flags().StringVar(&sinceStr, "since", "", "look back a duration (24h) or from a date (2024-01-31)")
	cmd.Flags().StringSliceVar(&serviceKeys, "service", nil, "limit discovery to these services")
	cmd.Flags().BoolVar(&fullScan, "full-scan", false, "ignore checkpoints and list everything")
	return cmd
}

// NewResolveCommand creates the resolve command.
func (a *App) NewResolveCommand() *cobra.Command {
	var (
		autoOnly      bool
		interactive   bool
		decisionsFile string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Apply conflict resolutions and advance unblocked photos",
		Long: `Resolve applies the automatic resolution rules to every discovered photo,
then applies any supplied manual decisions. Photos with no remaining
blocking conflicts advance to resolved and become eligible for
replication.

Decisions can be supplied as a JSON file (the pending list printed by a
previous run, with choices filled in) or interactively.`,
		Example: `  photosync resolve                        # automatic rules only
  photosync resolve --interactive          # prompt for each pending conflict
  photosync resolve --decisions d.json     # apply prepared decisions`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			decisions, err := loadDecisions(decisionsFile)
			if err != nil {
				return err
			}
			ps, err := a.PhotoSync()
			if err != nil {
				return err
			}
			ctx := a.commandContext(cmd)

			report, err := ps.Resolve(ctx, reconcile.ResolveOptions{
				Decisions: decisions,
				AutoOnly:  autoOnly,
			})
			if err != nil {
				return err
			}

			if interactive && len(report.Pending) > 0 {
				prompted, err := promptDecisions(cmd, report.Pending)
				if err != nil {
					return err
				}
				if len(prompted) > 0 {
					report, err = ps.Resolve(ctx, reconcile.ResolveOptions{Decisions: prompted})
					if err != nil {
						return err
					}
				}
			}
			return a.renderReport(cmd, report)
		},
	}

	cmd.Flags().BoolVar(&autoOnly, "auto-only", false, "apply automatic rules but never advance state")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for each conflict that needs a decision")
	cmd.Flags().StringVar(&decisionsFile, "decisions", "", "JSON file of prepared decisions")
	return cmd
}

// NewReplicateCommand creates the replicate command.
func (a *App) NewReplicateCommand() *cobra.Command {
	var (
		dryRun  bool
		execute bool
	)

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Push canonical state back out to every service",
		Long: `Replicate converges each resolved photo: the authoritative bytes are
downloaded and archived, divergent metadata is pushed to each service,
and visibility discrepancies are corrected. Fully converged photos
advance to replicated.

Without --execute the plan is printed and nothing is touched.`,
		Example: `  photosync replicate              # show the plan
  photosync replicate --execute    # perform it`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun && execute {
				return errors.New("--dry-run and --execute are mutually exclusive")
			}
			ps, err := a.PhotoSync()
			if err != nil {
				return err
			}
			report, err := ps.Replicate(a.commandContext(cmd), reconcile.ReplicateOptions{
				DryRun: !execute,
			})
			if err != nil {
				return err
			}
			return a.renderReport(cmd, report)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without executing it (the default)")
	cmd.Flags().BoolVar(&execute, "execute", false, "execute the plan")
	return cmd
}

// NewStatusCommand creates the status command.
func (a *App) NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := a.PhotoSync()
			if err != nil {
				return err
			}
			status, err := ps.Status(a.commandContext(cmd))
			if err != nil {
				return err
			}
			return a.renderStatus(cmd, status)
		},
	}
}

// NewAuditCommand creates the audit command.
func (a *App) NewAuditCommand() *cobra.Command {
	var visibilityCheck bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check stored records for integrity problems",
		Long: `Audit validates every stored record, verifies that replicated photos have
their original bytes archived, and with --visibility-check re-compares
each service's visibility against canonical, raising conflicts for any
service exposing a photo too widely.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := a.PhotoSync()
			if err != nil {
				return err
			}
			findings, err := ps.Audit(a.commandContext(cmd), reconcile.AuditOptions{
				VisibilityCheck: visibilityCheck,
			})
			if err != nil {
				return err
			}
			return a.renderFindings(cmd, findings)
		},
	}

	cmd.Flags().BoolVar(&visibilityCheck, "visibility-check", false, "re-check every service's visibility against canonical")
	return cmd
}

// NewInitCommand creates the init command.
func (a *App) NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Scaffold a metadata repository",
		Long: `Init creates the metadata repository layout at the given path (default
the current directory): the photos/ record tree, the blobs/ archive, a
services.yaml template, a photosync.yaml template, and a .gitignore
that keeps bytes and credentials out of version control.

Existing files are left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return scaffoldRepo(cmd, root)
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "photosync %s (commit %s, built %s)\n", a.version, a.commit, a.date)
		},
	}
}

// parseSince accepts a lookback duration ("24h"), an RFC 3339 timestamp, or
// a plain date ("2024-01-31").
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.NewValidationError("since", s, "must be a duration, RFC 3339 timestamp, or YYYY-MM-DD date")
}

// loadDecisions reads a JSON decisions file.
func loadDecisions(path string) ([]conflicts.Decision, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var decisions []conflicts.Decision
	if err := json.Unmarshal(raw, &decisions); err != nil {
		return nil, errors.WrapIO("decode", path, err)
	}
	return decisions, nil
}

// promptDecisions walks the pending requests interactively, reading one
// choice per conflict from stdin. An empty answer skips the conflict.
func promptDecisions(cmd *cobra.Command, pending []conflicts.DecisionRequest) ([]conflicts.Decision, error) {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	var decisions []conflicts.Decision
	for i, req := range pending {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(pending), req.Description)
		fmt.Fprintf(out, "  photo %s, services %s\n", req.PhotoID, strings.Join(req.Services, ", "))
		for n, opt := range req.Options {
			if opt.Value != "" {
				fmt.Fprintf(out, "  %d) %s (%s)\n", n+1, opt.Label, opt.Value)
			} else {
				fmt.Fprintf(out, "  %d) %s\n", n+1, opt.Label)
			}
		}
		fmt.Fprintf(out, "choice [1-%d, enter to skip]: ", len(req.Options))

		if !scanner.Scan() {
			break
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			continue
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(req.Options) {
			fmt.Fprintf(out, "  skipping: %q is not a valid choice\n", answer)
			continue
		}

		opt := req.Options[n-1]
		decision := conflicts.Decision{
			PhotoID:     req.PhotoID,
			ConflictKey: req.ConflictKey,
			Choice:      opt.Choice,
		}
		if opt.Choice == conflicts.ChoiceCustom {
			fmt.Fprintf(out, "value: ")
			if !scanner.Scan() {
				break
			}
			decision.Value = strings.TrimSpace(scanner.Text())
		}
		decisions = append(decisions, decision)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapIO("read", "stdin", err)
	}
	return decisions, nil
}

// scaffoldRepo creates the metadata repository layout, skipping anything
// that already exists.
func scaffoldRepo(cmd *cobra.Command, root string) error {
	out := cmd.OutOrStdout()

	for _, dir := range []string{root, filepath.Join(root, "photos"), filepath.Join(root, "blobs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapIO("mkdir", dir, err)
		}
	}

	servicesPath := filepath.Join(root, "services.yaml")
	if _, err := os.Stat(servicesPath); os.IsNotExist(err) {
		template := &config.Registry{Services: []config.Service{{
			Key:     "archive",
			Kind:    "localdir",
			Path:    "/path/to/your/photos",
			Enabled: false,
		}}}
		if err := config.WriteRegistry(servicesPath, template); err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s\n", servicesPath)
	}

	configPath := filepath.Join(root, "photosync.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := os.WriteFile(configPath, []byte(configTemplate(root)), 0o644); err != nil {
			return errors.WrapIO("write", configPath, err)
		}
		fmt.Fprintf(out, "created %s\n", configPath)
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte("blobs/\n.env\n.env.local\n"), 0o644); err != nil {
			return errors.WrapIO("write", gitignorePath, err)
		}
		fmt.Fprintf(out, "created %s\n", gitignorePath)
	}

	fmt.Fprintf(out, "repository ready at %s\n", root)
	return nil
}

// configTemplate renders the starter photosync.yaml.
func configTemplate(root string) string {
	return `# Photosync engine configuration.
repo_path: ` + root + `
backend: files        # files or sqlite
workers: 4
default_visibility: private
`
}
