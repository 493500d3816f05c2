// Standard attribute keys. They follow a hierarchical naming convention
// ("model.name", "data.samples") so that logs from the pipeline, the job
// runner and the HTTP layer can be filtered the same way.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator, e.g. "Ridge", "GradientBoosting".
	ModelNameKey = "model.name"
	// ModelParamsKey carries the hyperparameter map of a model.
	ModelParamsKey = "model.params"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package or subsystem writing the record.
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey      = "data.samples"
	FeaturesKey     = "data.features"
	TargetColumnKey = "data.target_column"
	SourceKey       = "data.source"
)

// Performance and quality.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	RMSEKey       = "metrics.rmse"
	ScoreKey      = "metrics.selection_score"
	IterationKey  = "training.iteration"
	RandomSeedKey = "config.random_seed"
)

// Jobs and requests.
const (
	JobIDKey     = "job.id"
	JobKindKey   = "job.kind"
	JobStatusKey = "job.status"
	ProgressKey  = "job.progress"

	HTTPMethodKey = "http.method"
	HTTPRouteKey  = "http.route"
	HTTPStatusKey = "http.status"
	ClientIPKey   = "http.client_ip"
)

// Error context.
const (
	// ErrorCodeKey is one of the Error* codes below.
	ErrorCodeKey = "error.code"
	ErrorTypeKey = "error.type"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	PhaseLoading       = "loading"
	PhasePreprocessing = "preprocessing"
	PhaseTraining      = "training"
	PhaseSelection     = "selection"
	PhaseAssembly      = "assembly"

	ErrorInvalidInput   = "INVALID_INPUT"
	ErrorFitFailed      = "FIT_FAILED"
	ErrorConvergence    = "CONVERGENCE_FAILURE"
	ErrorSingularMatrix = "SINGULAR_MATRIX"
)
