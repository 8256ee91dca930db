package cli

import (
	"fmt"
	"strings"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/config"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/importer"
	"amc-progress-service/internal/infra/postgres"
	redisinfra "amc-progress-service/internal/infra/redis"
	transport "amc-progress-service/internal/transport/http"
	"github.com/spf13/cobra"
)

// NewSyncCmd pushes unsynced local scores to Postgres.
func NewSyncCmd(rt *runtime) *cobra.Command {
	var (
		name   string
		status bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced scores to the remote store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			b, err := connectBackend(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer b.Close()
			db, registry, err := openLocal(rt.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			profiles := postgres.NewProfileStore(b.pool)
			sync := app.NewSyncService(registry, postgres.NewScoreStore(b.pool), profiles)
			if status {
				st, err := sync.Status(cmd.Context(), rt.cfg.Local.UserID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "local %d, pending %d, remote %d\n", st.Local, st.Pending, st.Remote)
				return nil
			}
			res, err := sync.Migrate(cmd.Context(), rt.cfg.Local.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, failed %d\n", res.Pushed, res.Failed)
			if err != nil {
				return err
			}
			if name != "" {
				return profiles.SetDisplayName(cmd.Context(), rt.cfg.Local.UserID, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name shown on the leaderboard")
	cmd.Flags().BoolVar(&status, "status", false, "compare local and remote history without pushing")
	return cmd
}

// NewPracticeCmd prints a random practice set.
func NewPracticeCmd(rt *runtime) *cobra.Command {
	var (
		family          string
		lowest, highest int
		limit           int
	)
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Draw a random practice set from the question catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.QuestionFilter{MinNumber: lowest, MaxNumber: highest}
			if family != "" {
				t, ok := domain.ParseTestType(family)
				if !ok {
					return domain.Invalid("family", domain.ErrInvalidTestType)
				}
				filter.Family = t.Family()
			}
			b, err := connectBackend(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			set, err := app.NewPracticeService(b.catalog(rt.cfg)).Generate(cmd.Context(), filter, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, pq := range set {
				q := pq.Question
				fmt.Fprintf(out, "%2d. [%s %d #%d, %s] %s\n", pq.Number, strings.ToUpper(string(q.TestType)), q.Year, q.Number, q.Topic, q.Prompt)
				if len(q.Choices) > 0 {
					fmt.Fprintf(out, "    %s\n", strings.Join(q.Choices, "  "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "contest family (amc8, amc10, amc12)")
	cmd.Flags().IntVar(&lowest, "min", 0, "lowest question number")
	cmd.Flags().IntVar(&highest, "max", 0, "highest question number")
	cmd.Flags().IntVarP(&limit, "count", "n", 10, "number of questions")
	return cmd
}

// NewImportCmd loads catalog questions from an Excel workbook.
func NewImportCmd(rt *runtime) *cobra.Command {
	var cfg importer.Config
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import catalog questions from an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			b, err := connectBackend(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			res, err := importer.Import(cmd.Context(), cfg, postgres.NewQuestionStore(b.pool))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed %d rows: %d imported, %d skipped\n", res.TotalProcessed, res.Imported, res.Skipped)
			for _, msg := range res.Errors {
				fmt.Fprintf(out, "  %s\n", msg)
			}
			if b.redis != nil && res.Imported > 0 {
				ttl := config.TTLDuration(rt.cfg.Catalog.TTL, 10*time.Minute)
				return redisinfra.NewCatalogRepository(b.redis, postgres.NewQuestionStore(b.pool), ttl).Invalidate(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.FilePath, "file", "f", "", "path to the .xlsx file")
	cmd.Flags().StringVar(&cfg.SheetName, "sheet", "", "sheet name, defaults to the first sheet")
	cmd.Flags().IntVar(&cfg.StartRow, "start-row", 2, "first data row")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// NewLeaderboardCmd prints the remote XP leaderboard.
func NewLeaderboardCmd(rt *runtime) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by XP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			b, err := connectBackend(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			rows, err := postgres.NewProfileStore(b.pool).TopProfiles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d. %-20s level %-3d %6d XP\n", r.Rank, r.DisplayName, r.Level, r.XP)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows")
	return cmd
}

// NewTokenCmd issues a bearer token for the HTTP API.
func NewTokenCmd(rt *runtime) *cobra.Command {
	var (
		user, name string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := transport.NewAuthenticator(rt.cfg.Auth.JWTSecret).Issue(user, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id placed in the subject claim")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
