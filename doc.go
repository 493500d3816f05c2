// Package opensoda analyses open-source project activity metrics exported
// from OpenSODA as a CSV table, one row per project.
//
// # Analyses
//
//   - Fork prediction: select activity features for a target column, fit a
//     small bank of regressors (Ridge, Lasso, GradientBoosting, SVR) on a
//     seeded split and report the model that best balances accuracy and
//     overfitting, with per-project predictions and feature importances.
//   - Indicator statistics: descriptive statistics, pairwise correlations and
//     a top-ten comparison for six contributor and issue indicators.
//   - Response time forecast: expand the monthly change request response time
//     series into calendar and lag features, fit gradient boosting and
//     forecast the next six months.
//
// # Usage
//
// The opensoda command runs the analyses once and prints JSON, or serves
// them over HTTP:
//
//	opensoda predict --csv data/top_300_metrics.csv --target technical_fork
//	opensoda indicators --csv data/top_300_metrics.csv
//	opensoda serve --config opensoda.yaml
//
// Long-running work (CSV conversion, response time forecasts) runs as
// background jobs polled through GET /status/{task_id}.
//
// # Packages
//
//   - internal/dataset: CSV loading and numeric or date coercion
//   - internal/features: feature selection with a leakage guard
//   - internal/prediction: model bank, selection and result assembly
//   - internal/indicators, internal/responsetime: the other two analyses
//   - internal/jobs, internal/store: job registry and its SQL persistence
//   - internal/server, internal/cache, internal/config: the HTTP service
//   - sklearn/*, metrics, preprocessing: the numeric estimators
//   - pkg/errors, pkg/log: typed errors and structured logging
package opensoda
