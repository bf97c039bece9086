package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"concord/internal/config"
	"concord/internal/db"
	"concord/internal/emotion"
	"concord/internal/engine"
	"concord/internal/migrate"
	"concord/internal/repo"
	"concord/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "concord",
	Short: "Concord CLI",
	Long: `Concord runs structured group mediation sessions for interpersonal conflicts.
Core concepts:
- Workspace: your .concord directory holding the database; defaults come from concord.yml.
- Conflict: the dispute being mediated, with participants, goals, agreements and sessions.
- Participants: invited people activate (join) before they can speak or vote; capacity is bounded by settings.
- Session: one mediation sitting with a phased agenda adapted to the group's dynamics; only one can be open at a time.
- Phases: opening -> perspective sharing -> issue identification -> solution generation -> negotiation -> agreement -> closing, each with its own completion bar.
- Agreements: proposals that finalize by consensus; any standing objection keeps them in negotiation.
- Dynamics: trust, mood, volatility and participation balance recomputed as messages flow.
- Event log: diary of changes, view with 'concord log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONCORD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(conflictCmd())
	rootCmd.AddCommand(participantCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(agreementCmd())
	rootCmd.AddCommand(dynamicsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func conflictCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "conflict",
		Short: "Manage conflicts",
		Long:  "Conflicts hold everything about one dispute: who is involved, what they want, what has been agreed, and every mediation session held so far.",
	}
	c.AddCommand(conflictCreateCmd())
	c.AddCommand(conflictListCmd())
	c.AddCommand(conflictShowCmd())
	c.AddCommand(conflictStatusCmd())
	return c
}

func conflictCreateCmd() *cobra.Command {
	var title, description, category, intensity, creatorName, creatorID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			if creatorName == "" {
				return fmt.Errorf("--creator required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateConflict(ctx, engine.ConflictCreateOptions{
					Title:       title,
					Description: description,
					Category:    category,
					Intensity:   intensity,
					CreatorName: creatorName,
					CreatorID:   creatorID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "conflict title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category (interpersonal, family, workplace, neighbor, other)")
	cmd.Flags().StringVar(&intensity, "intensity", "", "intensity (low, medium, high, severe)")
	cmd.Flags().StringVar(&creatorName, "creator", "", "creator display name")
	cmd.Flags().StringVar(&creatorID, "creator-id", "", "creator id (optional)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("creator")
	return cmd
}

func conflictListCmd() *cobra.Command {
	var f repo.ConflictFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListConflicts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Intensity", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Title, c.Category, c.Status, c.Intensity, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func conflictShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conflict with participants, goals, agreements and sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetConflict(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func conflictStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Change conflict status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateConflictStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (active, paused, resolved, escalated)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func participantCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "participant",
		Short: "Manage participants",
		Long:  "Participants are invited, then activate to join. Joined and active participants count toward consensus; removed ones keep their history.",
	}
	p.AddCommand(participantAddCmd())
	p.AddCommand(participantActivateCmd())
	p.AddCommand(participantRemoveCmd())
	p.AddCommand(participantListCmd())
	return p
}

func participantAddCmd() *cobra.Command {
	var conflictID, id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Invite a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddParticipant(ctx, engine.ParticipantAddOptions{
					ConflictID: conflictID,
					ID:         id,
					Name:       name,
					Role:       role,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&id, "id", "", "participant id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role (primary, secondary, observer, facilitator)")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func participantActivateCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Mark an invited participant as joined",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ActivateParticipant(ctx, conflictID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func participantRemoveCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a participant (record is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RemoveParticipant(ctx, conflictID, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func participantListCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListParticipants(ctx, conflictID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Status", "Engagement"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Role, p.Status, p.Engagement})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func goalCmd() *cobra.Command {
	g := &cobra.Command{Use: "goal", Short: "Manage resolution goals"}
	g.AddCommand(goalAddCmd())
	g.AddCommand(goalListCmd())
	return g
}

func goalAddCmd() *cobra.Command {
	var conflictID, title, description, priority string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a resolution goal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.AddGoal(ctx, conflictID, title, description, priority, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&title, "title", "", "goal title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (low, medium, high, critical)")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func goalListCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resolution goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListGoals(ctx, conflictID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "session",
		Short: "Manage mediation sessions",
		Long:  "Sessions run a phased agenda picked and adapted to the group. Advancing past the last phase closes the session and scores its effectiveness.",
	}
	s.AddCommand(sessionOpenCmd())
	s.AddCommand(sessionCurrentCmd())
	s.AddCommand(sessionAdvanceCmd())
	s.AddCommand(sessionCloseCmd())
	s.AddCommand(sessionSayCmd())
	s.AddCommand(sessionMessagesCmd())
	return s
}

func sessionOpenCmd() *cobra.Command {
	var conflictID, facilitatorID string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a mediation session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.OpenSession(ctx, conflictID, facilitatorID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&facilitatorID, "facilitator", "", "facilitator participant id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func sessionCurrentCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CurrentSession(ctx, conflictID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func sessionAdvanceCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance the open session to the next phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, result, err := e.AdvancePhase(ctx, conflictID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"session": s,
					"result":  result,
					"closed":  s.Status == "closed",
				})
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func sessionCloseCmd() *cobra.Command {
	var conflictID, satisfactionJSON string
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			satisfaction := map[string]int{}
			if satisfactionJSON != "" {
				if err := json.Unmarshal([]byte(satisfactionJSON), &satisfaction); err != nil {
					return fmt.Errorf("invalid --satisfaction-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CloseSession(ctx, conflictID, satisfaction, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&satisfactionJSON, "satisfaction-json", "", `per-participant 1-10 ratings, e.g. {"p1":8}`)
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func sessionSayCmd() *cobra.Command {
	var conflictID, senderID, content, msgType string
	cmd := &cobra.Command{
		Use:   "say",
		Short: "Post a message in the open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.PostMessage(ctx, engine.MessageOptions{
					ConflictID: conflictID,
					SenderID:   senderID,
					Type:       msgType,
					Content:    content,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&senderID, "sender", "", "sender participant id")
	cmd.Flags().StringVar(&content, "content", "", "message content")
	cmd.Flags().StringVar(&msgType, "type", "", "message type (text, voice, system, facilitation)")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func sessionMessagesCmd() *cobra.Command {
	var sessionID string
	var limit int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List session messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSessionMessages(ctx, sessionID, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().IntVar(&limit, "limit", 100, "max messages")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func agreementCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "agreement",
		Short: "Manage agreements",
		Long:  "Agreements finalize by consensus: every joined or active participant must vote, any objection blocks, and the proposer counts as agreeing.",
	}
	a.AddCommand(agreementProposeCmd())
	a.AddCommand(agreementVoteCmd())
	a.AddCommand(agreementListCmd())
	a.AddCommand(agreementMarkCmd())
	return a
}

func agreementProposeCmd() *cobra.Command {
	var conflictID, title, proposedBy string
	var terms []string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose an agreement",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ProposeAgreement(ctx, engine.AgreementProposeOptions{
					ConflictID: conflictID,
					Title:      title,
					Terms:      terms,
					ProposedBy: proposedBy,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&title, "title", "", "agreement title")
	cmd.Flags().StringArrayVar(&terms, "term", []string{}, "agreement term (repeatable)")
	cmd.Flags().StringVar(&proposedBy, "by", "", "proposing participant id")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func agreementVoteCmd() *cobra.Command {
	var conflictID, participantID, choice string
	cmd := &cobra.Command{
		Use:   "vote <agreement-id>",
		Short: "Vote on an agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CastVote(ctx, conflictID, args[0], participantID, choice)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&participantID, "participant", "", "voting participant id")
	cmd.Flags().StringVar(&choice, "choice", "", "agree, disagree or abstain")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("participant")
	_ = cmd.MarkFlagRequired("choice")
	return cmd
}

func agreementListCmd() *cobra.Command {
	var conflictID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agreements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAgreements(ctx, conflictID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Agreed", "Objected"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Status, len(a.AgreedBy), len(a.ObjectedBy)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func agreementMarkCmd() *cobra.Command {
	var conflictID, status string
	cmd := &cobra.Command{
		Use:   "mark <agreement-id>",
		Short: "Mark a finalized agreement implemented, violated or modified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.MarkAgreement(ctx, conflictID, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	_ = cmd.MarkFlagRequired("conflict")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func dynamicsCmd() *cobra.Command {
	var conflictID string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "dynamics",
		Short: "Show group dynamics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if refresh {
					if err := e.RefreshDynamics(ctx, conflictID); err != nil {
						return err
					}
				}
				c, err := e.Repo.GetConflict(ctx, conflictID)
				if err != nil {
					return err
				}
				return printJSONOrTable(c.Dynamics)
			})
		},
	}
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict id")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute before showing")
	_ = cmd.MarkFlagRequired("conflict")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook loaded from concord.yml: default session settings, effectiveness scoring weights, emotion provider and webhooks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default concord.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: participants joining, phases advancing, votes, agreements and more.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var conflictID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, conflictID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&conflictID, "conflict", "", "conflict filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if p := emotion.NewFromConfig(cfg.Emotion); p != nil {
				e.Emotion = p
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Concord API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	if p := emotion.NewFromConfig(cfg.Emotion); p != nil {
		e.Emotion = p
	}
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
