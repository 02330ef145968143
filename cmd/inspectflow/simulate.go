package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anggasct/inspectflow"
)

// scenario drives one fresh submission and reports each step to w
type scenario struct {
	name        string
	description string
	run         func(ctx context.Context, w io.Writer, e *inspectflow.Engine) error
}

var scenarios = []scenario{
	{
		name:        "chain",
		description: "Supervisor sign-off through General Manager completion, then a GM re-sign",
		run:         runChain,
	},
	{
		name:        "reject",
		description: "Operations Manager rejects, Supervisor resubmits, chain completes",
		run:         runRejectResubmit,
	},
	{
		name:        "race",
		description: "Business Development and Procurement approve concurrently",
		run:         runJoinRace,
	},
}

func (c *cli) simulateCmd() *cobra.Command {
	var (
		only   []string
		rounds int
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run workflow scenarios against the configured store",
		Long: `simulate creates fresh submissions and drives them through the
approval chain, printing every step. It checks each committed change
against the transition table and exits non-zero on any violation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := selectScenarios(only)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				for round := 1; round <= rounds; round++ {
					for _, sc := range selected {
						fmt.Fprintf(out, "== %s (round %d): %s\n", sc.name, round, sc.description)
						if err := sc.run(ctx, out, a.engine); err != nil {
							return fmt.Errorf("scenario %s: %w", sc.name, err)
						}
					}
				}
				printMetrics(out, a)
				if a.validation.HasViolations() {
					return fmt.Errorf("workflow violations:\n  %s", strings.Join(a.validation.GetViolations(), "\n  "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&only, "scenario", nil, "Scenarios to run (chain, reject, race); default all")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "How many times to run each scenario")
	return cmd
}

func selectScenarios(names []string) ([]scenario, error) {
	if len(names) == 0 {
		return scenarios, nil
	}
	var out []scenario
	for _, name := range names {
		found := false
		for _, sc := range scenarios {
			if sc.name == name {
				out = append(out, sc)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
	}
	return out, nil
}

var (
	simSupervisor = inspectflow.Actor{ID: "sim-supervisor", Role: inspectflow.RoleSupervisor}
	simOM         = inspectflow.Actor{ID: "sim-om", Role: inspectflow.RoleOperationsManager}
	simBD         = inspectflow.Actor{ID: "sim-bd", Role: inspectflow.RoleBusinessDevelopment}
	simProc       = inspectflow.Actor{ID: "sim-procurement", Role: inspectflow.RoleProcurement}
	simGM         = inspectflow.Actor{ID: "sim-gm", Role: inspectflow.RoleGeneralManager}
)

func sign(actor inspectflow.Actor) inspectflow.SignInput {
	return inspectflow.SignInput{Signature: "sim:" + actor.ID}
}

// step applies one approval and checks the resulting status
func step(ctx context.Context, w io.Writer, e *inspectflow.Engine, id string, actor inspectflow.Actor, want inspectflow.Status) error {
	res, err := e.Approve(ctx, id, actor, sign(actor))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-22s %s -> %s\n", actor.Role, res.PreviousStatus, res.NewStatus)
	if res.NewStatus != want {
		return fmt.Errorf("%s approval left %s, want %s", actor.Role, res.NewStatus, want)
	}
	return nil
}

func create(ctx context.Context, w io.Writer, e *inspectflow.Engine) (string, error) {
	sub, err := e.Create(ctx, simSupervisor, inspectflow.CreateInput{
		FormBody: []byte(`{"site":"simulated","items":[]}`),
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(w, "  created %s\n", sub.ID)
	return sub.ID, nil
}

func runChain(ctx context.Context, w io.Writer, e *inspectflow.Engine) error {
	id, err := create(ctx, w, e)
	if err != nil {
		return err
	}
	steps := []struct {
		actor inspectflow.Actor
		want  inspectflow.Status
	}{
		{simSupervisor, inspectflow.StatusOperationsManagerReview},
		{simOM, inspectflow.StatusBDProcurementReview},
		{simBD, inspectflow.StatusBDProcurementReview},
		{simProc, inspectflow.StatusGeneralManagerReview},
		{simGM, inspectflow.StatusCompleted},
		{simGM, inspectflow.StatusCompleted},
	}
	for _, s := range steps {
		if err := step(ctx, w, e, id, s.actor, s.want); err != nil {
			return err
		}
	}
	return nil
}

func runRejectResubmit(ctx context.Context, w io.Writer, e *inspectflow.Engine) error {
	id, err := create(ctx, w, e)
	if err != nil {
		return err
	}
	if err := step(ctx, w, e, id, simSupervisor, inspectflow.StatusOperationsManagerReview); err != nil {
		return err
	}
	res, err := e.Reject(ctx, id, simOM, "incomplete photos")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-22s %s -> %s (%s)\n", simOM.Role, res.PreviousStatus, res.NewStatus, "incomplete photos")

	res, err = e.Resubmit(ctx, id, simSupervisor, inspectflow.ResubmitInput{
		FormBody: []byte(`{"site":"simulated","items":[],"photos":3}`),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-22s %s -> %s\n", "resubmit", res.PreviousStatus, res.NewStatus)
	if res.NewStatus != inspectflow.StatusOperationsManagerReview {
		return fmt.Errorf("resubmit left %s", res.NewStatus)
	}

	for _, s := range []struct {
		actor inspectflow.Actor
		want  inspectflow.Status
	}{
		{simOM, inspectflow.StatusBDProcurementReview},
		{simProc, inspectflow.StatusBDProcurementReview},
		{simBD, inspectflow.StatusGeneralManagerReview},
		{simGM, inspectflow.StatusCompleted},
	} {
		if err := step(ctx, w, e, id, s.actor, s.want); err != nil {
			return err
		}
	}
	return nil
}

func runJoinRace(ctx context.Context, w io.Writer, e *inspectflow.Engine) error {
	id, err := create(ctx, w, e)
	if err != nil {
		return err
	}
	if err := step(ctx, w, e, id, simSupervisor, inspectflow.StatusOperationsManagerReview); err != nil {
		return err
	}
	if err := step(ctx, w, e, id, simOM, inspectflow.StatusBDProcurementReview); err != nil {
		return err
	}

	results := make([]*inspectflow.Result, 2)
	g, gctx := errgroup.WithContext(ctx)
	for i, actor := range []inspectflow.Actor{simBD, simProc} {
		i, actor := i, actor
		g.Go(func() error {
			res, err := e.Approve(gctx, id, actor, sign(actor))
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	advanced := 0
	for i, res := range results {
		fmt.Fprintf(w, "  %-22s %s -> %s (attempts %d)\n",
			[]inspectflow.Role{simBD.Role, simProc.Role}[i], res.PreviousStatus, res.NewStatus, res.Attempts)
		if res.PreviousStatus != res.NewStatus {
			advanced++
		}
	}
	if advanced != 1 {
		return fmt.Errorf("join advanced %d times", advanced)
	}

	admin := inspectflow.Actor{ID: appName, Role: inspectflow.RoleAdmin}
	sub, err := e.Get(ctx, id, admin)
	if err != nil {
		return err
	}
	if sub.Status != inspectflow.StatusGeneralManagerReview || !sub.BusinessDevelopment.Signed() || !sub.Procurement.Signed() {
		return fmt.Errorf("join lost an update: status %s", sub.Status)
	}
	return nil
}

func printMetrics(w io.Writer, a *app) {
	counts := a.metrics.GetTransitionCounts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "== transitions")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-60s %d\n", k, counts[k])
	}
	fmt.Fprintf(w, "== conflicts retried: %d\n", a.metrics.GetConflictCount())
}
