package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/visualization"
)

type actorFlags struct {
	id   string
	role string
}

func (f *actorFlags) register(cmd *cobra.Command, defaultRole string) {
	cmd.Flags().StringVar(&f.id, "actor", "", "Acting user id")
	cmd.Flags().StringVar(&f.role, "role", defaultRole, "Acting role")
	_ = cmd.MarkFlagRequired("actor")
}

func (f *actorFlags) actor() (inspectflow.Actor, error) {
	return inspectflow.NewActor(f.id, f.role)
}

type signatureFlags struct {
	signature string
	file      string
	comments  string
}

func (f *signatureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.signature, "signature", "", "Signature reference")
	cmd.Flags().StringVar(&f.file, "signature-file", "", "Signature image to upload to the blob store")
	cmd.Flags().StringVar(&f.comments, "comments", "", "Comments recorded with the signature")
}

// load returns the signature reference or the image bytes and content type
func (f *signatureFlags) load() (string, []byte, string, error) {
	if f.file == "" {
		return f.signature, nil, "", nil
	}
	data, err := os.ReadFile(f.file)
	if err != nil {
		return "", nil, "", fmt.Errorf("read signature file: %w", err)
	}
	return f.signature, data, http.DetectContentType(data), nil
}

func readFormBody(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form body: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("form body %s is not valid JSON", path)
	}
	return data, nil
}

func printResult(w io.Writer, res *inspectflow.Result) {
	fmt.Fprintf(w, "%s: %s -> %s (version %d)\n", res.SubmissionID, res.PreviousStatus, res.NewStatus, res.Version)
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
}

func graphCmd() *cobra.Command {
	var (
		format   string
		output   string
		expanded bool
		effects  bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the workflow transition table with Graphviz",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := visualization.DefaultDOTOptions()
			opts.CompactMode = !expanded
			opts.ShowEffects = effects
			gen := visualization.NewDOTGenerator(inspectflow.DefaultTransitions(), opts)

			var (
				content string
				err     error
			)
			switch format {
			case "dot":
				content, err = gen.Generate()
			case "svg":
				content, err = gen.GenerateSVG()
			default:
				return fmt.Errorf("unknown format %q (dot, svg)", format)
			}
			if err != nil {
				return err
			}
			if output == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), content)
				return err
			}
			return os.WriteFile(output, []byte(content), 0644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "Output format (dot, svg)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&expanded, "expanded", false, "Draw one edge per role")
	cmd.Flags().BoolVar(&effects, "effects", false, "Label edges with their side effects")
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var (
		who  actorFlags
		sig  signatureFlags
		form string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an inspection report as its Supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			body, err := readFormBody(form)
			if err != nil {
				return err
			}
			ref, data, contentType, err := sig.load()
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				sub, err := a.engine.Create(ctx, actor, inspectflow.CreateInput{
					FormBody:      body,
					Comments:      sig.comments,
					Signature:     ref,
					SignatureData: data,
					ContentType:   contentType,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: created in %s\n", sub.ID, sub.Status)
				return nil
			})
		},
	}
	who.register(cmd, string(inspectflow.RoleSupervisor))
	sig.register(cmd)
	cmd.Flags().StringVar(&form, "form", "", "JSON file with the report body")
	return cmd
}

func (c *cli) approveCmd() *cobra.Command {
	var (
		who actorFlags
		sig signatureFlags
	)
	cmd := &cobra.Command{
		Use:   "approve <submission-id>",
		Short: "Sign a submission as the acting role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			ref, data, contentType, err := sig.load()
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.Approve(ctx, args[0], actor, inspectflow.SignInput{
					Comments:      sig.comments,
					Signature:     ref,
					SignatureData: data,
					ContentType:   contentType,
				})
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	who.register(cmd, "")
	_ = cmd.MarkFlagRequired("role")
	sig.register(cmd)
	return cmd
}

func (c *cli) rejectCmd() *cobra.Command {
	var (
		who    actorFlags
		reason string
	)
	cmd := &cobra.Command{
		Use:   "reject <submission-id>",
		Short: "Send a submission back to its Supervisor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.Reject(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	who.register(cmd, "")
	_ = cmd.MarkFlagRequired("role")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the report is rejected")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) resubmitCmd() *cobra.Command {
	var (
		who  actorFlags
		sig  signatureFlags
		form string
	)
	cmd := &cobra.Command{
		Use:   "resubmit <submission-id>",
		Short: "Resubmit a rejected report to Operations Manager review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			body, err := readFormBody(form)
			if err != nil {
				return err
			}
			ref, data, contentType, err := sig.load()
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.Resubmit(ctx, args[0], actor, inspectflow.ResubmitInput{
					FormBody:      body,
					Comments:      sig.comments,
					Signature:     ref,
					SignatureData: data,
					ContentType:   contentType,
				})
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	who.register(cmd, string(inspectflow.RoleSupervisor))
	sig.register(cmd)
	cmd.Flags().StringVar(&form, "form", "", "JSON file with the corrected report body")
	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	var who actorFlags
	cmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Print a submission and the actor's permissions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := who.actor()
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				sub, err := a.engine.Get(ctx, args[0], actor)
				if err != nil {
					return err
				}
				perms, err := a.engine.Permissions(ctx, args[0], actor)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Submission  *inspectflow.Submission `json:"submission"`
					Permissions inspectflow.Permissions `json:"permissions"`
				}{sub, perms})
			})
		},
	}
	who.register(cmd, string(inspectflow.RoleAdmin))
	return cmd
}

func (c *cli) pendingCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List submissions awaiting a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := inspectflow.ParseRole(role)
			if err != nil {
				return err
			}
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				ids, err := a.engine.ListPendingFor(ctx, r)
				if err != nil {
					return err
				}
				return printSubmissions(ctx, cmd.OutOrStdout(), a, ids)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Role whose inbox to list")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List submissions an actor has signed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStoredApp(cmd, func(ctx context.Context, a *app) error {
				ids, err := a.engine.ListHistoryFor(ctx, actorID)
				if err != nil {
					return err
				}
				return printSubmissions(ctx, cmd.OutOrStdout(), a, ids)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "Actor id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

// printSubmissions writes one row per id, read with admin visibility
func printSubmissions(ctx context.Context, w io.Writer, a *app, ids []string) error {
	admin := inspectflow.Actor{ID: appName, Role: inspectflow.RoleAdmin}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tREVISION\tUPDATED\tSIGNED")
	for _, id := range ids {
		sub, err := a.engine.Get(ctx, id, admin)
		if err != nil {
			return err
		}
		var signed []string
		for _, role := range inspectflow.ChainRoles {
			if sub.IsSigned(role) {
				signed = append(signed, string(role))
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", sub.ID, sub.Status, sub.Revision,
			sub.UpdatedAt.Format("2006-01-02 15:04"), strings.Join(signed, ","))
	}
	return tw.Flush()
}
