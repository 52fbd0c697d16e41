package model

import "time"

// Diagnostics describes one local search.
type Diagnostics struct {
	Restart      int     `json:"restart" yaml:"restart"`
	Start        Params  `json:"start" yaml:"start"`
	Iterations   int     `json:"iterations" yaml:"iterations"`
	FuncEvals    int     `json:"func_evals" yaml:"func_evals"`
	GradEvals    int     `json:"grad_evals" yaml:"grad_evals"`
	Status       string  `json:"status" yaml:"status"`
	Message      string  `json:"message" yaml:"message"`
	Converged    bool    `json:"converged" yaml:"converged"`
	ProjGradNorm float64 `json:"proj_grad_norm" yaml:"proj_grad_norm"`
	Cost         float64 `json:"cost" yaml:"cost"`
}

// FitResult is the outcome of a multi-start fit over one trial set.
type FitResult struct {
	ID            string      `json:"id" yaml:"id"`
	Subject       string      `json:"subject" yaml:"subject"`
	Params        Params      `json:"params" yaml:"params"`
	LogLikelihood float64     `json:"ll" yaml:"ll"`
	Trials        int         `json:"trials" yaml:"trials"`
	Restarts      int         `json:"restarts" yaml:"restarts"`
	Feasible      int         `json:"feasible" yaml:"feasible"`
	Seed          uint64      `json:"seed" yaml:"seed"`
	Diagnostics   Diagnostics `json:"diagnostics" yaml:"diagnostics"`
	CreatedAt     time.Time   `json:"created_at" yaml:"created_at"`
}

// Record returns the persisted (k, m, ll) triple for the fit.
func (r *FitResult) Record() ParamRecord {
	return ParamRecord{
		Subject: r.Subject,
		K:       r.Params.K,
		M:       r.Params.M,
		LL:      r.LogLikelihood,
	}
}

// ParamRecord is the triple read by downstream offer generation.
type ParamRecord struct {
	Subject string  `json:"subject" yaml:"subject"`
	K       float64 `json:"k" yaml:"k"`
	M       float64 `json:"m" yaml:"m"`
	LL      float64 `json:"ll" yaml:"ll"`
}
