package prediction

// Result is the JSON document returned for one prediction run.
type Result struct {
	Metadata          Metadata              `json:"metadata"`
	ModelComparison   map[string]Comparison `json:"model_comparison"`
	FeatureImportance []FeatureImportance   `json:"feature_importance"`
	Predictions       []PredictionRecord    `json:"predictions"`
}

// Metadata describes the run.
type Metadata struct {
	TargetColumn   string   `json:"target_column"`
	BestModel      string   `json:"best_model"`
	FeaturesUsed   []string `json:"features_used"`
	TotalSamples   int      `json:"total_samples"`
	ValidSamples   int      `json:"valid_samples"`
	TrainSamples   int      `json:"train_samples"`
	TestSamples    int      `json:"test_samples"`
	TargetEncoding string   `json:"target_encoding"`
	Timestamp      string   `json:"timestamp"`
}

// Comparison is one row of the model comparison table.
type Comparison struct {
	R2Train        float64 `json:"r2_train"`
	R2Test         float64 `json:"r2_test"`
	RMSE           float64 `json:"rmse"`
	MAE            float64 `json:"mae"`
	OverfittingGap float64 `json:"overfitting_gap"`
	Score          float64 `json:"score"`
	Selected       bool    `json:"selected"`
}

// FeatureImportance is the contribution of one feature to the best model.
type FeatureImportance struct {
	FeatureName   string  `json:"feature_name"`
	Importance    float64 `json:"importance"`
	AbsImportance float64 `json:"abs_importance"`
}

// PredictionRecord is the outcome for one test-split project.
type PredictionRecord struct {
	ProjectName          string  `json:"project_name"`
	TrueValue            float64 `json:"true_value"`
	PredictedValue       float64 `json:"predicted_value"`
	AbsoluteError        float64 `json:"absolute_error"`
	RelativeErrorPercent float64 `json:"relative_error_percent"`
}
