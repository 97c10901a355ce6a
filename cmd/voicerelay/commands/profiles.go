package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/config"
	"github.com/haivivi/voicerelay/pkg/cli"
	"github.com/haivivi/voicerelay/pkg/profile"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage enrolled voice profiles",
	Long: `List or delete the voice profiles in the configured storage backend.

Do not delete profiles while a server is running against the same storage:
the server keeps its own in-memory copy until restart.

Examples:
  voicerelay profiles list -o table
  voicerelay profiles delete 1f0c3a6e-...`,
}

var profilesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored profiles with their voice labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := outputOptions(cmd, cli.FormatTable)
		if err != nil {
			return err
		}
		return withProfiles(cmd.Context(), func(cfg *config.Config, store *profile.Store) error {
			list, err := listProfiles(cfg.Voiceprint, store)
			if err != nil {
				return err
			}
			return cli.Output(list, opts)
		})
	},
}

var profilesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete profiles by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProfiles(cmd.Context(), func(_ *config.Config, store *profile.Store) error {
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ deleted %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesDeleteCmd)
	rootCmd.AddCommand(profilesCmd)
}

// withProfiles opens the storage backend, loads the profile table and calls
// fn with it.
func withProfiles(ctx context.Context, fn func(*config.Config, *profile.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	// Keep admin output clean unless asked for.
	if logLevel == "" && !verbose {
		logger = slog.New(slog.DiscardHandler)
	}

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	store := profile.NewStore(st.profiles, logger)
	if err := store.Load(ctx); err != nil {
		return err
	}
	return fn(cfg, store)
}

// profileRow is one line of "profiles list".
type profileRow struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Size  int    `json:"size" yaml:"size"`
}

type profileList []profileRow

func (profileList) Header() []string { return []string{"ID", "LABEL", "SIZE"} }

func (l profileList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, p := range l {
		rows[i] = []string{p.ID, p.Label, cli.FormatBytes(int64(p.Size))}
	}
	return rows
}

// listProfiles labels every stored profile with its voice hash. Profiles
// the local engine cannot decode are labelled "-".
func listProfiles(vc config.VoiceprintConfig, store *profile.Store) (profileList, error) {
	_, model := newEngine(vc)
	hasher, err := voiceprint.NewHasher(model.Dimension(), vc.HashBits, vc.HashSeed)
	if err != nil {
		return nil, err
	}
	snap := store.Snapshot()
	list := make(profileList, 0, len(snap))
	for _, c := range snap {
		label, err := hasher.Label(c.Profile)
		if err != nil {
			label = "-"
		}
		list = append(list, profileRow{ID: c.ID, Label: label, Size: len(c.Profile)})
	}
	return list, nil
}
