package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/fitk/internal/model"
)

func testFit(subject string, createdAt time.Time) *model.FitResult {
	return &model.FitResult{
		ID:            uuid.New().String(),
		Subject:       subject,
		Params:        model.Params{K: 0.0213, M: 4.87},
		LogLikelihood: -112.5,
		Trials:        3,
		Restarts:      1000,
		Feasible:      998,
		Seed:          18446744073709551557, // above MaxInt64
		Diagnostics: model.Diagnostics{
			Restart:    17,
			Start:      model.Params{K: 0.011, M: 1.3},
			Iterations: 24,
			FuncEvals:  81,
			GradEvals:  25,
			Status:     "converged_rel_reduction",
			Converged:  true,
			Cost:       112.5,
		},
		CreatedAt: createdAt,
	}
}

func testTrials() model.Trials {
	return model.Trials{
		{SSAmount: 20, SSDelay: 0, LLAmount: 40, LLDelay: 60, Choice: model.ChoiceLL},
		{SSAmount: 20, SSDelay: 15, LLAmount: 40, LLDelay: 30, Choice: model.ChoiceLL},
		{SSAmount: 10, SSDelay: 0, LLAmount: 12.35, LLDelay: 21, Choice: model.ChoiceSS},
	}
}
