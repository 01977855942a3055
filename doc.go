// Package hypertune orchestrates hyperparameter search: it resolves an
// algorithm onto a backend, normalizes the search space, binds the
// objective callable and drives the propose/evaluate/record loop.
//
// A search is configured declaratively and run to completion:
//
//	best, err := hypertune.Minimize(ctx, hypertune.Config{
//		Algorithm: "tpe",
//		Space: map[string]any{
//			"lr":     []any{1e-4, 1e-1},
//			"layers": []any{1, 2, 3, 4},
//		},
//		Objective:  train,
//		Iterations: 100,
//		Seed:       42,
//	})
//
// Algorithms (grid, random, bayes, tpe, atpe, evolutionary) run on one
// of four interchangeable backends; an omitted backend picks the
// algorithm's default, and incompatible pairs fail construction with a
// ConfigError. Minimization is the fixed convention. Objectives that
// want to maximize return the negated value.
package hypertune
