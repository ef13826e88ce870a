package service

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/mesa-scheduler/internal/dto"
	appErrors "github.com/noah-isme/mesa-scheduler/pkg/errors"
)

// Violation kinds.
const (
	ViolationPrecedence = "precedence"
	ViolationCollision  = "collision"
)

// Violation marks a dated number that must not stay where it is.
type Violation struct {
	Kind    string
	Number  int64
	DNI     string
	AreaID  int64
	Against int64
}

// DetectViolations scans the snapshot for precedence breaks and student collisions.
// A precedence break lands on the higher-year number placed earlier; a collision on
// every colliding number but the lowest. The result is deterministic.
func DetectViolations(snap *ScheduleSnapshot) []Violation {
	type violationKey struct {
		kind   string
		number int64
		dni    string
	}
	var out []Violation
	seen := make(map[violationKey]struct{})
	add := func(v Violation) {
		key := violationKey{kind: v.Kind, number: v.Number, dni: v.DNI}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}

	for key, history := range snap.assignments() {
		for _, a := range history {
			for _, b := range history {
				if a.Number == b.Number {
					continue
				}
				if a.Slot.Before(b.Slot) && a.CourseYear > b.CourseYear {
					add(Violation{Kind: ViolationPrecedence, Number: a.Number, DNI: key.DNI, AreaID: key.AreaID, Against: b.Number})
				}
			}
		}
	}

	for _, slot := range snap.UsedSlots() {
		for dni, numbers := range snap.occupants(slot) {
			if len(numbers) < 2 {
				continue
			}
			sorted := append([]int64(nil), numbers...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			for _, n := range sorted[1:] {
				if n == sorted[0] {
					continue
				}
				info, _ := snap.Number(n)
				add(Violation{Kind: ViolationCollision, Number: n, DNI: dni, AreaID: info.AreaID, Against: sorted[0]})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		if out[i].DNI != out[j].DNI {
			return out[i].DNI < out[j].DNI
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// ResolutionReport lists the corrective actions of one resolver pass.
type ResolutionReport struct {
	Deferred []int64
	Splits   []dto.SplitSummary
}

// PrecedenceResolver remediates violations by selective split or full defer.
type PrecedenceResolver struct {
	splitThreshold int
	logger         *zap.Logger
}

// NewPrecedenceResolver builds a resolver. Groups or slots holding at least splitThreshold
// distinct students are split rather than deferred.
func NewPrecedenceResolver(splitThreshold int, logger *zap.Logger) *PrecedenceResolver {
	if splitThreshold <= 0 {
		splitThreshold = DefaultSplitThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrecedenceResolver{splitThreshold: splitThreshold, logger: logger}
}

// Resolve fixes violations one at a time, rebuilding the snapshot after each fix. Every
// fix undates at least one student on one number, so the loop is bounded by the unit
// count; going past that bound means the store is not converging and the run is aborted.
func (r *PrecedenceResolver) Resolve(sess *scheduleSession) (ResolutionReport, error) {
	var report ResolutionReport
	limit := 1
	for _, n := range sess.snap.Numbers() {
		info, _ := sess.snap.Number(n)
		limit += len(info.Students)
	}
	for i := 0; ; i++ {
		violations := DetectViolations(sess.snap)
		if len(violations) == 0 {
			return report, nil
		}
		if i >= limit {
			return report, appErrors.Clone(appErrors.ErrConsistency, "precedence resolution did not converge")
		}
		v := violations[0]
		if err := r.fix(sess, v, &report); err != nil {
			return report, err
		}
		if err := sess.refresh(); err != nil {
			return report, err
		}
	}
}

func (r *PrecedenceResolver) fix(sess *scheduleSession, v Violation, report *ResolutionReport) error {
	info, ok := sess.snap.Number(v.Number)
	if !ok {
		return appErrors.Clone(appErrors.ErrConsistency, fmt.Sprintf("violation on unknown exam number %d", v.Number))
	}

	if r.crowded(sess, v.Number) {
		if len(info.Students) > 1 {
			target, err := sess.splitStudent(v.Number, v.DNI)
			if err == nil {
				report.Splits = append(report.Splits, dto.SplitSummary{Origin: v.Number, DNI: v.DNI, NewNumber: target})
				r.logger.Info("violation resolved by split", zap.String("kind", v.Kind), zap.Int64("number", v.Number), zap.Int64("new_number", target))
				return nil
			}
			r.logger.Warn("split failed, deferring", zap.Int64("number", v.Number), zap.Error(err))
		} else {
			if err := sess.detachNumber(v.Number); err != nil {
				return err
			}
			report.Splits = append(report.Splits, dto.SplitSummary{Origin: v.Number, DNI: v.DNI, NewNumber: v.Number})
			r.logger.Info("violation resolved by detaching number", zap.String("kind", v.Kind), zap.Int64("number", v.Number))
			return nil
		}
	}

	deferred, err := sess.deferNumber(v.Number)
	if err != nil {
		return err
	}
	report.Deferred = append(report.Deferred, deferred...)
	r.logger.Info("violation resolved by defer", zap.String("kind", v.Kind), zap.Int64("number", v.Number), zap.Int64s("undated", deferred))
	return nil
}

// crowded reports whether the number's group, or the number itself when ungrouped,
// holds at least the split threshold of distinct students.
func (r *PrecedenceResolver) crowded(sess *scheduleSession, number int64) bool {
	if id, ok := sess.snap.GroupOf(number); ok {
		group, _ := sess.snap.Group(id)
		return len(sess.snap.GroupStudents(group)) >= r.splitThreshold
	}
	info, _ := sess.snap.Number(number)
	return len(info.Students) >= r.splitThreshold
}
