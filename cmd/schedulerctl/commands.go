package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/bootstrap"
	"github.com/noah-isme/mesa-scheduler/internal/dto"
	"github.com/noah-isme/mesa-scheduler/pkg/config"
	"github.com/noah-isme/mesa-scheduler/pkg/logger"
)

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	container *bootstrap.Container
}

func newRootCommand() *cobra.Command {
	rt := &app{}
	root := &cobra.Command{
		Use:          "schedulerctl",
		Short:        "Run exam grouping and scheduling operations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return rt.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			rt.close()
		},
	}
	root.AddCommand(
		newGroupCommand(rt),
		newBatchAssignCommand(rt),
		newReoptimizeCommand(rt),
		newCandidatesCommand(rt),
	)
	return root
}

func (rt *app) open() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	container, err := bootstrap.New(cfg, logr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	rt.cfg, rt.logger, rt.container = cfg, logr, container
	return nil
}

func (rt *app) close() {
	if rt.container != nil {
		rt.container.Close()
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

func newGroupCommand(rt *app) *cobra.Command {
	var req dto.RunGroupingRequest
	var start, end, date, shift string
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Group scheduled numbers by slot and area",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.StartDate = optional(start)
			req.EndDate = optional(end)
			req.FilterDate = optional(date)
			req.FilterShift = optional(shift)
			report, err := rt.container.Grouping.RunGrouping(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&req.DryRun, "dry-run", false, "roll back instead of committing")
	flags.BoolVar(&req.ScheduleUndated, "schedule-undated", false, "assign slots to undated units")
	flags.StringVar(&start, "start", "", "first date of the scheduling range (YYYY-MM-DD)")
	flags.StringVar(&end, "end", "", "last date of the scheduling range (YYYY-MM-DD)")
	flags.StringVar(&date, "date", "", "only group numbers on this date")
	flags.StringVar(&shift, "shift", "", "only group numbers on this shift (1 or 2)")
	return cmd
}

func newBatchAssignCommand(rt *app) *cobra.Command {
	var req dto.BatchAssignRequest
	var area int64
	var subjects []int64
	var dnis []string
	cmd := &cobra.Command{
		Use:   "batch-assign",
		Short: "Create dated exam units for pending subjects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if area > 0 || len(subjects) > 0 || len(dnis) > 0 {
				req.Filters = &dto.BatchAssignFilters{SubjectIDs: subjects, DNIs: dnis}
				if area > 0 {
					req.Filters.AreaID = &area
				}
			}
			report, err := rt.container.BatchAssign.RunBatchAssign(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.StartDate, "start", "", "first date of the range (YYYY-MM-DD)")
	flags.StringVar(&req.EndDate, "end", "", "last date of the range (YYYY-MM-DD)")
	flags.BoolVar(&req.DryRun, "dry-run", false, "roll back instead of committing")
	flags.BoolVar(&req.Group, "group", false, "group the created numbers in the same run")
	flags.Int64Var(&area, "area", 0, "only subjects of this area")
	flags.Int64SliceVar(&subjects, "subject", nil, "only these subject ids")
	flags.StringSliceVar(&dnis, "dni", nil, "only these students")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newReoptimizeCommand(rt *app) *cobra.Command {
	var req dto.ReoptimizeRequest
	var start, end string
	var area int64
	cmd := &cobra.Command{
		Use:   "reoptimize",
		Short: "Fold ungrouped numbers into groups until nothing changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.StartDate = optional(start)
			req.EndDate = optional(end)
			if area > 0 {
				req.AreaID = &area
			}
			report, err := rt.container.Reoptimize.RunReoptimize(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&req.DryRun, "dry-run", false, "roll back instead of committing")
	flags.IntVar(&req.MaxIter, "max-iter", 0, "iteration cap (default from config)")
	flags.StringVar(&start, "start", "", "first candidate date (YYYY-MM-DD)")
	flags.StringVar(&end, "end", "", "last candidate date (YYYY-MM-DD)")
	flags.Int64Var(&area, "area", 0, "only this area")
	return cmd
}

func newCandidatesCommand(rt *app) *cobra.Command {
	var date, shift string
	var exclude int64
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List ungrouped numbers and their eligibility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := dto.CandidateQuery{Date: optional(date), Shift: optional(shift)}
			if exclude > 0 {
				query.Exclude = &exclude
			}
			candidates, err := rt.container.Mutations.ListUngroupedCandidates(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), candidates)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&date, "date", "", "target date (YYYY-MM-DD)")
	flags.StringVar(&shift, "shift", "", "target shift (1 or 2)")
	flags.Int64Var(&exclude, "exclude", 0, "number to leave out")
	return cmd
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
