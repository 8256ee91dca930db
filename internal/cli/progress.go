package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/events"
	"amc-progress-service/internal/gamification"
	"amc-progress-service/internal/report"
	"amc-progress-service/internal/scoring"
	"amc-progress-service/internal/stats"
	"github.com/spf13/cobra"
)

// NewGradeCmd grades a test and records it locally.
func NewGradeCmd(rt *runtime) *cobra.Command {
	var (
		sub    app.Submission
		topics string
	)
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade an answer string against a key and save the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseTopics(topics)
			if err != nil {
				return err
			}
			sub.Topics = parsed
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				updates, cancel := progress.Events().Subscribe()
				defer cancel()

				score, err := progress.SubmitTest(cmd.Context(), sub)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %d: %.1f / %.0f (%.1f%%)\n", strings.ToUpper(string(score.TestType)), score.Year,
					score.Score, score.MaxScore, scoring.Percent(score))
				fmt.Fprintf(out, "+%d XP  +%d coins\n", gamification.XPForScore(score.Score), gamification.CoinsForScore(score.Score))
				printEvents(cmd, updates)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sub.TestType, "type", "t", "", "test type (amc8, amc10a, amc12b, ...)")
	cmd.Flags().IntVarP(&sub.Year, "year", "y", time.Now().Year(), "contest year")
	cmd.Flags().StringVarP(&sub.Input, "answers", "a", "", "25 answers, use a blank or '-' for skipped")
	cmd.Flags().StringVarP(&sub.Key, "key", "k", "", "25-letter answer key")
	cmd.Flags().StringVar(&sub.Label, "label", "", "optional label, such as mock or official")
	cmd.Flags().StringVar(&topics, "topics", "", "question topics, e.g. 1=Algebra,2=Geometry")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("answers")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func parseTopics(raw string) (map[int]domain.Topic, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[int]domain.Topic)
	for _, pair := range strings.Split(raw, ",") {
		num, topic, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("topic %q: expected number=topic", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n < 1 || n > domain.QuestionCount {
			return nil, fmt.Errorf("topic %q: bad question number", pair)
		}
		out[n] = domain.NormalizeTopic(topic)
	}
	return out, nil
}

// printEvents drains pending notifications without blocking.
func printEvents(cmd *cobra.Command, updates <-chan events.Event) {
	out := cmd.OutOrStdout()
	for {
		select {
		case ev := <-updates:
			switch ev.Kind {
			case events.LevelUp:
				fmt.Fprintf(out, "Level up! You reached level %d\n", ev.Level)
			case events.BadgeEarned:
				if ev.Badge != nil {
					fmt.Fprintf(out, "Badge earned: %s %s\n", ev.Badge.Emoji, ev.Badge.Title)
				}
			case events.StreakStarted:
				fmt.Fprintf(out, "Streak started: day %d\n", ev.Streak)
			case events.StreakBroken:
				fmt.Fprintln(out, "Your previous streak ended")
			}
		default:
			return
		}
	}
}

// NewStatsCmd prints the aggregate statistics.
func NewStatsCmd(rt *runtime) *cobra.Command {
	var (
		testType, family, label string
		top                     int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show accuracy, trend and topic statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := statsFilter(testType, family, label)
			if err != nil {
				return err
			}
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				scores, err := progress.Scores(cmd.Context())
				if err != nil {
					return err
				}
				return stats.RenderSummary(cmd.OutOrStdout(), stats.Summarize(scores, f, top))
			})
		},
	}
	cmd.Flags().StringVarP(&testType, "type", "t", "", "only this test type")
	cmd.Flags().StringVar(&family, "family", "", "only this contest family (amc8, amc10, amc12)")
	cmd.Flags().StringVar(&label, "label", "", "only tests with this label")
	cmd.Flags().IntVar(&top, "top", 3, "number of strengths and weaknesses")
	return cmd
}

func statsFilter(testType, family, label string) (stats.Filter, error) {
	f := stats.Filter{Label: label}
	if testType != "" {
		t, ok := domain.ParseTestType(testType)
		if !ok {
			return f, domain.Invalid("type", domain.ErrInvalidTestType)
		}
		f.TestType = t
	}
	if family != "" {
		t, ok := domain.ParseTestType(family)
		if !ok {
			return f, domain.Invalid("family", domain.ErrInvalidTestType)
		}
		f.Family = t
	}
	return f, nil
}

// NewProfileCmd prints level, coins, streak and badges.
func NewProfileCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show level, coins, streak and badges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				p, err := progress.Profile(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Level %d (%d%%, %d/%d XP)\n", p.Level.Level, p.Level.Progress, p.Level.XPIntoLevel, p.Level.XPForNextLevel)
				fmt.Fprintf(out, "XP: %d  Coins: %d  Streak: %d  Tests: %d\n", p.XP, p.Coins, p.Streak, p.TotalTests)
				if p.PersonalBest != nil {
					fmt.Fprintf(out, "Personal best: %s %s\n", p.PersonalBest.Emoji, p.PersonalBest.Title)
				}
				for _, b := range p.Badges {
					mark := "  "
					if b.Earned {
						mark = "✔ "
					}
					fmt.Fprintf(out, "%s%s %s: %s\n", mark, b.Emoji, b.Title, b.Description)
				}
				fmt.Fprintf(out, "Avatars: %s\n", strings.Join(p.UnlockedAvatars, ", "))
				return nil
			})
		},
	}
}

// NewBonusCmd claims the daily bonus.
func NewBonusCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "bonus",
		Short: "Claim today's XP bonus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				updates, cancel := progress.Events().Subscribe()
				defer cancel()
				res, err := progress.ClaimDailyBonus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "+%d XP, streak %d day(s), level %d\n", res.Reward, res.Streak, res.Level.Level)
				printEvents(cmd, updates)
				return nil
			})
		},
	}
}

// NewAvatarCmd lists the shop or buys an avatar.
func NewAvatarCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "avatar [id]",
		Short: "List avatars or unlock one with coins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, a := range gamification.Avatars {
					fmt.Fprintf(out, "%-8s %s %-16s %4d coins\n", a.ID, a.Emoji, a.Name, a.Cost)
				}
				return nil
			}
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				balance, err := progress.UnlockAvatar(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Unlocked %s, %d coins left\n", args[0], balance)
				return nil
			})
		},
	}
}

// NewPrefsCmd shows or updates preferences.
func NewPrefsCmd(rt *runtime) *cobra.Command {
	var theme, mode string
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change theme and scoring mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				prefs, err := progress.Preferences(cmd.Context())
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("theme") || cmd.Flags().Changed("mode") {
					if cmd.Flags().Changed("theme") {
						prefs.Theme = theme
					}
					if cmd.Flags().Changed("mode") {
						prefs.ScoringMode = scoring.ParseMode(mode)
					}
					if err := progress.UpdatePreferences(cmd.Context(), prefs); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "theme=%s scoringMode=%s\n", prefs.Theme, prefs.ScoringMode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "UI theme")
	cmd.Flags().StringVar(&mode, "mode", "", "scoring mode: standard or raw")
	return cmd
}

// NewResetCmd wipes local progress.
func NewResetCmd(rt *runtime) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all local progress for the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				if err := progress.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Local progress cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

// NewReportCmd exports a PDF progress report.
func NewReportCmd(rt *runtime) *cobra.Command {
	var (
		path, testType, family, label string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a PDF progress report",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := statsFilter(testType, family, label)
			if err != nil {
				return err
			}
			return withProgress(rt.cfg, func(progress *app.ProgressService) error {
				scores, err := progress.Scores(cmd.Context())
				if err != nil {
					return err
				}
				profile, err := progress.Profile(cmd.Context())
				if err != nil {
					return err
				}
				file, err := os.Create(path)
				if err != nil {
					return err
				}
				in := report.Input{
					Title:       "AMC Progress Report",
					GeneratedAt: time.Now(),
					Profile:     profile,
					Summary:     stats.Summarize(scores, f, 3),
					Scores:      stats.Apply(scores, f),
				}
				if err := report.WritePDF(file, in); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&path, "out", "o", "amc-progress.pdf", "output file")
	cmd.Flags().StringVarP(&testType, "type", "t", "", "only this test type")
	cmd.Flags().StringVar(&family, "family", "", "only this contest family")
	cmd.Flags().StringVar(&label, "label", "", "only tests with this label")
	return cmd
}
