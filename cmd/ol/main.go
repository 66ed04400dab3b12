package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/exchange"
	"offerline/internal/migrate"
	"offerline/internal/repo"
	"offerline/internal/server"
	"offerline/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Offerline CLI",
	Long: `Offerline runs a gift-economy marketplace: users and organizations publish
requests and offers, link them to approved service types and mediums of
exchange, and settle exchanges through proposals, agreements, and reviews.
Administrators accept new members and curate the shared catalogs.`,
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
	viper.SetEnvPrefix("OFFERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("agent-id", "local-agent", "agent identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("agent-id", rootCmd.PersistentFlags().Lookup("agent-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(serviceTypeCmd())
	rootCmd.AddCommand(mediumCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(offerCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(exchangeCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var u domain.User
	create := &cobra.Command{
		Use:   "create",
		Short: "Register the calling agent's user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if u.Name == "" || u.Email == "" {
				return fmt.Errorf("--name and --email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.CreateUser(ctx, u, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&u.Name, "name", "", "user name")
	create.Flags().StringVar(&u.Email, "email", "", "user email")
	create.Flags().StringVar(&u.Nickname, "nickname", "", "nickname")
	create.Flags().StringVar(&u.Bio, "bio", "", "short bio")
	create.Flags().StringVar(&u.Location, "location", "", "location")
	create.Flags().StringVar(&u.TimeZone, "time-zone", "", "time zone")
	create.Flags().StringSliceVar(&u.Skills, "skills", nil, "skills")
	user.AddCommand(create)

	var accepted bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.UserRecord
					err  error
				)
				if accepted {
					recs, err = e.AcceptedUsers(ctx)
				} else {
					recs, err = e.ListUsers(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Location"})
				for _, r := range recs {
					tw.AppendRow(table.Row{r.Revision.RootID, r.User.Name, r.User.Email, r.User.Location})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&accepted, "accepted", false, "only accepted users")
	user.AddCommand(list)

	user.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.GetLatestUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	user.AddCommand(&cobra.Command{
		Use:   "me",
		Short: "Show the calling agent's user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.UserForAgent(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	user.AddCommand(&cobra.Command{
		Use:   "agents <id>",
		Short: "List the agents registered to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				agents, err := e.AgentsForUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(agents)
			})
		},
	})

	return user
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var o domain.Organization
	create := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.CreateOrganization(ctx, o, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&o.Name, "name", "", "organization name")
	create.Flags().StringVar(&o.Description, "description", "", "description")
	create.Flags().StringVar(&o.FullLegalName, "legal-name", "", "full legal name")
	create.Flags().StringVar(&o.Email, "email", "", "contact email")
	create.Flags().StringVar(&o.Location, "location", "", "location")
	create.Flags().StringSliceVar(&o.URLs, "urls", nil, "web pages")
	org.AddCommand(create)

	var accepted bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.OrganizationRecord
					err  error
				)
				if accepted {
					recs, err = e.AcceptedOrganizations(ctx)
				} else {
					recs, err = e.ListOrganizations(ctx)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	}
	list.Flags().BoolVar(&accepted, "accepted", false, "only accepted organizations")
	org.AddCommand(list)

	org.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.GetLatestOrganization(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	org.AddCommand(&cobra.Command{
		Use:   "members <id>",
		Short: "List members and coordinators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				members, err := e.Members(ctx, args[0])
				if err != nil {
					return err
				}
				coords, err := e.Coordinators(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string][]string{
					"members":      members,
					"coordinators": coords,
				})
			})
		},
	})

	memberOp := func(use, short string, fn func(context.Context, *engine.Engine, string, string) error) *cobra.Command {
		var userID string
		cmd := &cobra.Command{
			Use:   use + " <org-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if userID == "" {
					return fmt.Errorf("--user required")
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
					return fn(ctx, e, args[0], userID)
				})
			},
		}
		cmd.Flags().StringVar(&userID, "user", "", "user id")
		return cmd
	}
	org.AddCommand(memberOp("add-member", "Add a member", func(ctx context.Context, e *engine.Engine, orgID, userID string) error {
		return e.AddMember(ctx, orgID, userID, actorID())
	}))
	org.AddCommand(memberOp("remove-member", "Remove a member", func(ctx context.Context, e *engine.Engine, orgID, userID string) error {
		return e.RemoveMember(ctx, orgID, userID, actorID())
	}))
	org.AddCommand(memberOp("add-coordinator", "Promote a member to coordinator", func(ctx context.Context, e *engine.Engine, orgID, userID string) error {
		return e.AddCoordinator(ctx, orgID, userID, actorID())
	}))
	org.AddCommand(memberOp("remove-coordinator", "Demote a coordinator", func(ctx context.Context, e *engine.Engine, orgID, userID string) error {
		return e.RemoveCoordinator(ctx, orgID, userID, actorID())
	}))

	org.AddCommand(&cobra.Command{
		Use:   "leave <id>",
		Short: "Leave an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.LeaveOrganization(ctx, args[0], actorID())
			})
		},
	})

	org.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteOrganization(ctx, args[0], actorID())
			})
		},
	})

	return org
}

func serviceTypeCmd() *cobra.Command {
	st := &cobra.Command{Use: "service-type", Short: "Manage the service type catalog"}

	var def domain.ServiceType
	var suggest bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create (administrator) or suggest (--suggest) a service type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if def.Name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					rec engine.ServiceTypeRecord
					err error
				)
				if suggest {
					rec, err = e.SuggestServiceType(ctx, def, actorID())
				} else {
					rec, err = e.CreateServiceType(ctx, def, actorID())
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&def.Name, "name", "", "service type name")
	create.Flags().StringVar(&def.Description, "description", "", "description")
	create.Flags().BoolVar(&def.Technical, "technical", false, "technical service")
	create.Flags().StringSliceVar(&def.Tags, "tags", nil, "tags")
	create.Flags().BoolVar(&suggest, "suggest", false, "suggest for approval instead of creating")
	st.AddCommand(create)

	var accepted bool
	var tag string
	list := &cobra.Command{
		Use:   "list",
		Short: "List service types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.ServiceTypeRecord
					err  error
				)
				switch {
				case tag != "":
					recs, err = e.ServiceTypesByTag(ctx, tag)
				case accepted:
					recs, err = e.AcceptedServiceTypes(ctx)
				default:
					recs, err = e.ListServiceTypes(ctx)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	}
	list.Flags().BoolVar(&accepted, "accepted", false, "only approved service types")
	list.Flags().StringVar(&tag, "tag", "", "filter by tag")
	st.AddCommand(list)

	st.AddCommand(&cobra.Command{
		Use:   "tags",
		Short: "List every tag in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tags, err := e.AllTags(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(tags)
			})
		},
	})

	st.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a suggested service type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.ApproveServiceType(ctx, args[0], actorID())
			})
		},
	})

	var reason string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a suggested service type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.RejectServiceType(ctx, args[0], reason, actorID())
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason")
	st.AddCommand(reject)

	st.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a service type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteServiceType(ctx, args[0], actorID())
			})
		},
	})

	return st
}

func mediumCmd() *cobra.Command {
	med := &cobra.Command{Use: "medium", Short: "Manage mediums of exchange"}

	var m domain.MediumOfExchange
	var suggest bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create (administrator) or suggest (--suggest) a medium",
		RunE: func(cmd *cobra.Command, args []string) error {
			if m.Code == "" || m.Name == "" {
				return fmt.Errorf("--code and --name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					rec engine.MediumRecord
					err error
				)
				if suggest {
					rec, err = e.SuggestMedium(ctx, m, actorID())
				} else {
					rec, err = e.CreateMedium(ctx, m, actorID())
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&m.Code, "code", "", "medium code, e.g. TIME")
	create.Flags().StringVar(&m.Name, "name", "", "medium name")
	create.Flags().StringVar(&m.Description, "description", "", "description")
	create.Flags().BoolVar(&suggest, "suggest", false, "suggest for approval instead of creating")
	med.AddCommand(create)

	var state string
	list := &cobra.Command{
		Use:   "list",
		Short: "List mediums of exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.MediumRecord
					err  error
				)
				switch state {
				case "", "all":
					recs, err = e.ListMediums(ctx)
				case "pending":
					recs, err = e.PendingMediums(ctx)
				case "approved":
					recs, err = e.ApprovedMediums(ctx)
				case "rejected":
					recs, err = e.RejectedMediums(ctx)
				default:
					return fmt.Errorf("--status must be all, pending, approved, or rejected")
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	}
	list.Flags().StringVar(&state, "status", "all", "filter: all, pending, approved, rejected")
	med.AddCommand(list)

	med.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a suggested medium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.ApproveMedium(ctx, args[0], actorID())
			})
		},
	})

	var reason string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a suggested medium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.RejectMedium(ctx, args[0], reason, actorID())
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason")
	med.AddCommand(reject)

	med.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a medium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteMedium(ctx, args[0], actorID())
			})
		},
	})

	return med
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage requests"}

	var r domain.Request
	var serviceTypes, mediums []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Publish a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.Title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.CreateRequest(ctx, engine.RequestCreateOptions{
					Request:        r,
					ServiceTypeIDs: serviceTypes,
					MediumIDs:      mediums,
					ActorID:        actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&r.Title, "title", "", "request title")
	create.Flags().StringVar(&r.Description, "description", "", "description")
	create.Flags().StringVar(&r.OrganizationID, "organization", "", "owning organization id")
	create.Flags().StringSliceVar(&r.Skills, "skills", nil, "skills wanted")
	create.Flags().StringSliceVar(&serviceTypes, "service-types", nil, "linked service type ids")
	create.Flags().StringSliceVar(&mediums, "mediums", nil, "linked medium ids")
	req.AddCommand(create)

	var userID, orgID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.RequestRecord
					err  error
				)
				switch {
				case userID != "":
					recs, err = e.RequestsForUser(ctx, userID)
				case orgID != "":
					recs, err = e.RequestsForOrganization(ctx, orgID)
				default:
					recs, err = e.ListRequests(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(recs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Organization"})
				for _, rec := range recs {
					tw.AppendRow(table.Row{rec.Revision.RootID, rec.Request.Title, rec.Request.OrganizationID})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&userID, "user", "", "only requests owned by this user")
	list.Flags().StringVar(&orgID, "organization", "", "only requests owned by this organization")
	req.AddCommand(list)

	req.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.GetLatestRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	req.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteRequest(ctx, args[0], actorID())
			})
		},
	})

	return req
}

func offerCmd() *cobra.Command {
	off := &cobra.Command{Use: "offer", Short: "Manage offers"}

	var o domain.Offer
	var serviceTypes, mediums []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Publish an offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.CreateOffer(ctx, engine.OfferCreateOptions{
					Offer:          o,
					ServiceTypeIDs: serviceTypes,
					MediumIDs:      mediums,
					ActorID:        actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringVar(&o.Title, "title", "", "offer title")
	create.Flags().StringVar(&o.Description, "description", "", "description")
	create.Flags().StringVar(&o.OrganizationID, "organization", "", "owning organization id")
	create.Flags().StringVar(&o.Availability, "availability", "", "availability")
	create.Flags().StringSliceVar(&o.Capabilities, "capabilities", nil, "capabilities")
	create.Flags().StringSliceVar(&serviceTypes, "service-types", nil, "linked service type ids")
	create.Flags().StringSliceVar(&mediums, "mediums", nil, "linked medium ids")
	off.AddCommand(create)

	var userID, orgID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				var (
					recs []engine.OfferRecord
					err  error
				)
				switch {
				case userID != "":
					recs, err = e.OffersForUser(ctx, userID)
				case orgID != "":
					recs, err = e.OffersForOrganization(ctx, orgID)
				default:
					recs, err = e.ListOffers(ctx)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	}
	list.Flags().StringVar(&userID, "user", "", "only offers owned by this user")
	list.Flags().StringVar(&orgID, "organization", "", "only offers owned by this organization")
	off.AddCommand(list)

	off.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rec, err := e.GetLatestOffer(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	off.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteOffer(ctx, args[0], actorID())
			})
		},
	})

	return off
}

func statusCmd() *cobra.Command {
	st := &cobra.Command{Use: "status", Short: "Administer entity lifecycle statuses"}

	st.AddCommand(&cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show an entity's current status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, rev, err := e.Status.Latest(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"status": s, "revision_id": rev.ID})
			})
		},
	})

	st.AddCommand(&cobra.Command{
		Use:   "history <kind> <id>",
		Short: "Show every status revision of an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				revs, err := e.Status.History(ctx, args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(revs)
			})
		},
	})

	st.AddCommand(&cobra.Command{
		Use:   "accept <kind> <id>",
		Short: "Accept a pending or suspended entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				_, err := e.Status.Update(ctx, status.UpdateRequest{
					Kind:     args[0],
					EntityID: args[1],
					New:      status.NewAccepted(),
					ActorID:  actorID(),
				})
				return err
			})
		},
	})

	var reason string
	reject := &cobra.Command{
		Use:   "reject <kind> <id>",
		Short: "Reject a pending entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				_, err := e.Status.Update(ctx, status.UpdateRequest{
					Kind:     args[0],
					EntityID: args[1],
					New:      status.NewRejected(reason),
					ActorID:  actorID(),
				})
				return err
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason")
	st.AddCommand(reject)

	var suspendReason string
	var days int
	var indefinite bool
	suspend := &cobra.Command{
		Use:   "suspend <kind> <id>",
		Short: "Suspend an accepted entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if indefinite {
					_, err := e.Status.SuspendIndefinitely(ctx, args[0], args[1], suspendReason, "", actorID())
					return err
				}
				d := days
				if d == 0 && e.Config != nil {
					d = e.Config.Suspension.DefaultDurationDays
				}
				_, err := e.Status.SuspendTemporarily(ctx, args[0], args[1], suspendReason, d, "", actorID())
				return err
			})
		},
	}
	suspend.Flags().StringVar(&suspendReason, "reason", "", "suspension reason")
	suspend.Flags().IntVar(&days, "days", 0, "suspension length in days")
	suspend.Flags().BoolVar(&indefinite, "indefinite", false, "suspend with no end date")
	st.AddCommand(suspend)

	st.AddCommand(&cobra.Command{
		Use:   "unsuspend <kind> <id>",
		Short: "Restore a suspended entity to accepted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				_, err := e.Status.Unsuspend(ctx, args[0], args[1], "", actorID())
				return err
			})
		},
	})

	return st
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{Use: "admin", Short: "Manage administrators"}

	adminOp := func(use, short string, fn func(context.Context, *engine.Engine, string) error) *cobra.Command {
		var userID string
		cmd := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if userID == "" {
					return fmt.Errorf("--user required")
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
					return fn(ctx, e, userID)
				})
			},
		}
		cmd.Flags().StringVar(&userID, "user", "", "user id")
		return cmd
	}
	adm.AddCommand(adminOp("bootstrap", "Register the first administrator", func(ctx context.Context, e *engine.Engine, userID string) error {
		return e.BootstrapAdministrator(ctx, userID, actorID())
	}))
	adm.AddCommand(adminOp("add", "Grant administrator rights", func(ctx context.Context, e *engine.Engine, userID string) error {
		return e.AddAdministrator(ctx, userID, actorID())
	}))
	adm.AddCommand(adminOp("remove", "Revoke administrator rights", func(ctx context.Context, e *engine.Engine, userID string) error {
		return e.RemoveAdministrator(ctx, userID, actorID())
	}))

	adm.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				recs, err := e.ListAdministrators(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(recs)
			})
		},
	})

	return adm
}

func exchangeCmd() *cobra.Command {
	ex := &cobra.Command{Use: "exchange", Short: "Run exchanges: proposals, agreements, reviews"}

	var p domain.Proposal
	var requestID, offerID string
	propose := &cobra.Command{
		Use:   "propose",
		Short: "Open a proposal against a request, an offer, or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" && offerID == "" {
				return fmt.Errorf("--request or --offer required")
			}
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.CreateProposal(ctx, exchange.ProposalCreateOptions{
					Proposal:  p,
					RequestID: requestID,
					OfferID:   offerID,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	propose.Flags().StringVar(&requestID, "request", "", "target request id")
	propose.Flags().StringVar(&offerID, "offer", "", "target offer id")
	propose.Flags().StringVar(&p.ServiceDetails, "details", "", "service details")
	propose.Flags().StringVar(&p.Terms, "terms", "", "proposed terms")
	propose.Flags().StringVar(&p.ExchangeMedium, "medium", "", "exchange medium")
	propose.Flags().StringVar(&p.ExchangeValue, "value", "", "exchange value")
	propose.Flags().StringVar(&p.DeliveryTimeframe, "timeframe", "", "delivery timeframe")
	propose.Flags().StringVar(&p.ExpiresAt, "expires-at", "", "expiry (RFC3339)")
	ex.AddCommand(propose)

	ex.AddCommand(&cobra.Command{
		Use:   "accept <proposal-id>",
		Short: "Accept a proposal and open the agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.AcceptProposal(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	ex.AddCommand(&cobra.Command{
		Use:   "reject <proposal-id>",
		Short: "Reject a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				return x.RejectProposal(ctx, args[0], actorID())
			})
		},
	})

	var role string
	complete := &cobra.Command{
		Use:   "complete <agreement-id>",
		Short: "Mark one side of an agreement complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != exchange.RoleProvider && role != exchange.RoleReceiver {
				return fmt.Errorf("--role must be provider or receiver")
			}
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.MarkComplete(ctx, args[0], role, "", actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	complete.Flags().StringVar(&role, "role", "", "provider or receiver")
	ex.AddCommand(complete)

	var cancelReason, explanation string
	var mutual bool
	cancel := &cobra.Command{
		Use:   "cancel <agreement-id>",
		Short: "Initiate cancellation of an agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cancelReason == "" {
				return fmt.Errorf("--reason required")
			}
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.InitiateCancellation(ctx, exchange.CancellationOptions{
					AgreementID: args[0],
					Reason:      cancelReason,
					Explanation: explanation,
					Mutual:      mutual,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cancel.Flags().StringVar(&cancelReason, "reason", "", "cancellation reason")
	cancel.Flags().StringVar(&explanation, "explanation", "", "explanation for the other party")
	cancel.Flags().BoolVar(&mutual, "mutual", false, "both parties already agree")
	ex.AddCommand(cancel)

	var consent bool
	var notes string
	respond := &cobra.Command{
		Use:   "respond <cancellation-id>",
		Short: "Consent to or dispute a cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.RespondToCancellation(ctx, args[0], consent, notes, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	respond.Flags().BoolVar(&consent, "consent", false, "consent to the cancellation")
	respond.Flags().StringVar(&notes, "notes", "", "response notes")
	ex.AddCommand(respond)

	var rating int
	var comment string
	review := &cobra.Command{
		Use:   "review <agreement-id>",
		Short: "Review the other party of a completed agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.CreateReview(ctx, args[0], rating, comment, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	review.Flags().IntVar(&rating, "rating", 0, "rating 1-5")
	review.Flags().StringVar(&comment, "comment", "", "review comment")
	ex.AddCommand(review)

	ex.AddCommand(&cobra.Command{
		Use:   "agreement <id>",
		Short: "Show an agreement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExchange(cmd.Context(), func(ctx context.Context, x *exchange.Service) error {
				rec, err := x.GetLatestAgreement(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	})

	return ex
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the calling agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 32)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "olk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.New().String(),
					AgentID:   actorID(),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	ak.AddCommand(create)

	ak.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the calling agent's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	})

	ak.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})

	return ak
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			return migrate.Migrate(conn)
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var metrics, accessLog bool
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
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("OFFERLINE_JWT_SECRET"),
				AllowLegacyAgentHeader: cfg.Auth.AllowLegacyActorHeader,
			}
			if authCfg.JWTSecret == "" {
				authCfg.JWTSecret = cfg.Auth.JWTSecret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyAgentHeader {
				return fmt.Errorf("OFFERLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:    e,
				Exchange:  exchange.New(e),
				Repo:      repo.Repo{DB: conn},
				BasePath:  basePath,
				Auth:      authCfg,
				Metrics:   metrics,
				AccessLog: accessLog,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Offerline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "expose Prometheus metrics on /metrics")
	cmd.Flags().BoolVar(&accessLog, "access-log", true, "log one JSON line per request")
	return cmd
}

// --- helpers ---

func actorID() string {
	return viper.GetString("agent-id")
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
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
	return fn(ctx, e)
}

func withExchange(ctx context.Context, fn func(context.Context, *exchange.Service) error) error {
	return withEngine(ctx, func(ctx context.Context, e *engine.Engine) error {
		return fn(ctx, exchange.New(e))
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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
