// Package responsetime forecasts change-request response times from the
// monthly histories of every project with a gradient-boosted ensemble.
package responsetime

import (
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
	"github.com/HaoJinjin/open-soda/preprocessing"
	"github.com/HaoJinjin/open-soda/sklearn/lightgbm"
	"github.com/HaoJinjin/open-soda/sklearn/model_selection"
)

const (
	// SeriesColumn holds the per-project monthly history.
	SeriesColumn = "change_request_response_time"
	// MinPoints is the shortest history a project needs to contribute.
	MinPoints = 3
	// Horizon is the number of forecast months.
	Horizon = 6
	// HistorySample is the number of trailing cleaned rows returned.
	HistorySample = 20
	// ModelName labels the ensemble in the result.
	ModelName = "GradientBoosting"

	outlierIQRFactor = 2.0
	testSize         = 0.2
	seed             = 42
	cvSplits         = 5
	mapeEpsilon      = 1e-10
	nEstimators      = 200
	maxDepth         = 5
	learningRate     = 0.05
)

// FeatureColumns names the design matrix columns, in order.
var FeatureColumns = []string{
	"year", "month", "quarter", "month_order", "is_quarter_end",
	"is_year_end", "is_peak_season", "month_sin", "month_cos",
	"response_time_ma_3", "response_time_ma_6",
	"response_time_std_3", "response_time_std_6",
	"response_time_diff_1", "response_time_lag_1", "response_time_lag_2",
}

// ProgressFunc receives a percentage and a step description.
type ProgressFunc func(progress int, message string)

// Result is the JSON document of a response-time forecast.
type Result struct {
	Metadata             Metadata              `json:"metadata"`
	ModelEvaluation      map[string]Evaluation `json:"model_evaluation"`
	FuturePrediction     Forecast              `json:"future_prediction"`
	HistoricalDataSample []HistoryRow          `json:"historical_data_sample"`
}

// Metadata describes the forecast input.
type Metadata struct {
	DataSource     string   `json:"data_source"`
	TargetMetric   string   `json:"target_metric"`
	TotalProjects  int      `json:"total_projects"`
	ValidSamples   int      `json:"valid_samples"`
	FeatureColumns []string `json:"feature_columns"`
	BestModel      string   `json:"best_model"`
}

// Evaluation holds held-out and cross-validated scores.
type Evaluation struct {
	R2Train    float64        `json:"r2_train"`
	R2Test     float64        `json:"r2_test"`
	MAE        float64        `json:"mae"`
	RMSE       float64        `json:"rmse"`
	CVMean     float64        `json:"cv_mean"`
	CVStd      float64        `json:"cv_std"`
	BestParams map[string]any `json:"best_params"`
	MAPE       float64        `json:"mape"`
}

// Forecast lists the predicted months and values.
type Forecast struct {
	PredictionTimePoints  []string  `json:"prediction_time_points"`
	PredictedResponseTime []float64 `json:"predicted_response_time"`
	PredictionExplanation string    `json:"prediction_explanation"`
}

// HistoryRow is one cleaned observation.
type HistoryRow struct {
	TimeStr      string  `json:"time_str"`
	ResponseTime float64 `json:"response_time"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
}

// observation is one project-month with its features.
type observation struct {
	project int
	month   string
	value   float64
	cal     Calendar
	temp    Temporal
}

func (o observation) row() []float64 {
	return append(calendarRow(o.cal), o.temp.MA3, o.temp.MA6, o.temp.Std3, o.temp.Std6,
		o.temp.Diff1, o.temp.Lag1, o.temp.Lag2)
}

func calendarRow(c Calendar) []float64 {
	return []float64{
		float64(c.Year), float64(c.Month), float64(c.Quarter), float64(c.MonthOrder),
		indicator(c.QuarterEnd), indicator(c.YearEnd), indicator(c.PeakSeason),
		c.MonthSin, c.MonthCos,
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PredictFile loads path and forecasts it.
func PredictFile(path string, progress ProgressFunc) (*Result, error) {
	report(progress, 14, "loading data")
	table, err := dataset.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "response time prediction")
	}
	res, err := predict(table, filepath.Base(path), progress, false)
	if err != nil {
		return nil, errors.Wrap(err, "response time prediction")
	}
	return res, nil
}

// Predict forecasts the histories in table. source names the input in the
// result metadata.
func Predict(table *dataset.Table, source string, progress ProgressFunc) (*Result, error) {
	res, err := predict(table, source, progress, true)
	if err != nil {
		return nil, errors.Wrap(err, "response time prediction")
	}
	return res, nil
}

func report(progress ProgressFunc, pct int, msg string) {
	if progress != nil {
		progress(pct, msg)
	}
}

func predict(table *dataset.Table, source string, progress ProgressFunc, reportLoad bool) (*Result, error) {
	logger := log.GetLoggerWithName("responsetime")
	if reportLoad {
		report(progress, 14, "loading data")
	}
	if !table.HasColumn(SeriesColumn) {
		return nil, errors.NewInputErrorf("PredictResponseTime", "column %q not found", SeriesColumn)
	}

	report(progress, 28, "parsing time series")
	report(progress, 42, "building the prediction dataset")
	obs := observations(table)
	if len(obs) == 0 {
		return nil, errors.NewInputErrorf("PredictResponseTime",
			"no project has at least %d monthly points", MinPoints)
	}

	report(progress, 56, "cleaning and preprocessing")
	clean := dropOutliers(obs)
	X := mat.NewDense(len(clean), len(FeatureColumns), nil)
	y := make([]float64, len(clean))
	for i, o := range clean {
		X.SetRow(i, o.row())
		y[i] = o.value
	}

	split, err := model_selection.TrainTestSplit(len(clean), testSize, seed)
	if err != nil {
		return nil, err
	}
	if len(split.Train) <= cvSplits {
		return nil, errors.NewInputErrorf("PredictResponseTime",
			"%d training rows are too few for %d-fold time-series validation", len(split.Train), cvSplits)
	}
	scaler := preprocessing.NewRobustScaler()
	xTrain, err := scaler.FitTransform(model_selection.TakeRows(X, split.Train))
	if err != nil {
		return nil, err
	}
	xTest, err := scaler.Transform(model_selection.TakeRows(X, split.Test))
	if err != nil {
		return nil, err
	}
	yTrain := mat.NewVecDense(len(split.Train), model_selection.TakeValues(y, split.Train))
	yTest := mat.NewVecDense(len(split.Test), model_selection.TakeValues(y, split.Test))

	report(progress, 70, "training the model")
	gbr := newEnsemble()
	if err := gbr.Fit(xTrain, yTrain); err != nil {
		return nil, err
	}
	trainPred, err := gbr.Predict(xTrain)
	if err != nil {
		return nil, err
	}
	testPred, err := gbr.Predict(xTest)
	if err != nil {
		return nil, err
	}

	evaluation, err := evaluate(yTrain, yTest, metrics.ColumnVec(trainPred), metrics.ColumnVec(testPred))
	if err != nil {
		return nil, err
	}
	folds, err := model_selection.NewTimeSeriesSplit(cvSplits).Split(len(split.Train))
	if err != nil {
		return nil, err
	}
	cv, err := model_selection.CrossValScore(func() model.Regressor { return newEnsemble() },
		xTrain, yTrain.RawVector().Data, folds)
	if err != nil {
		return nil, err
	}
	evaluation.CVMean = round(cv.Mean, 4)
	evaluation.CVStd = round(cv.Std, 4)
	logger.Info("Response time model evaluated",
		log.ModelNameKey, ModelName,
		log.SamplesKey, len(clean),
		log.R2ScoreKey, evaluation.R2Test,
		log.RMSEKey, evaluation.RMSE,
	)

	report(progress, 85, "forecasting the next months")
	future, err := forecast(clean, y, scaler, gbr)
	if err != nil {
		return nil, err
	}

	report(progress, 100, "assembling the result")
	start := len(clean) - HistorySample
	if start < 0 {
		start = 0
	}
	history := make([]HistoryRow, 0, len(clean)-start)
	for _, o := range clean[start:] {
		history = append(history, HistoryRow{
			TimeStr:      o.month,
			ResponseTime: round(o.value, 2),
			Year:         o.cal.Year,
			Month:        o.cal.Month,
		})
	}

	return &Result{
		Metadata: Metadata{
			DataSource:     source,
			TargetMetric:   SeriesColumn,
			TotalProjects:  table.Len(),
			ValidSamples:   len(clean),
			FeatureColumns: append([]string(nil), FeatureColumns...),
			BestModel:      ModelName,
		},
		ModelEvaluation:      map[string]Evaluation{ModelName: evaluation},
		FuturePrediction:     future,
		HistoricalDataSample: history,
	}, nil
}

func newEnsemble() *lightgbm.LGBMRegressor {
	return lightgbm.NewLGBMRegressor().
		WithNumIterations(nEstimators).
		WithMaxDepth(maxDepth).
		WithLearningRate(learningRate).
		WithSubsample(0.8, 1).
		WithColsampleBytree(0.8).
		WithMinChildSamples(1).
		WithRegLambda(1).
		WithRandomState(seed)
}

// observations expands every project with at least MinPoints monthly
// points into feature rows, projects in table order, months ascending.
func observations(table *dataset.Table) []observation {
	var out []observation
	for row, raw := range table.Column(SeriesColumn) {
		series := ParseSeries(raw)
		if len(series) < MinPoints {
			continue
		}
		values := make([]float64, len(series))
		for i, p := range series {
			values[i] = p.Value
		}
		temporal := TemporalFeatures(values)
		for i, p := range series {
			cal, _ := CalendarOf(p.Month)
			out = append(out, observation{
				project: row,
				month:   p.Month,
				value:   p.Value,
				cal:     cal,
				temp:    temporal[i],
			})
		}
	}
	return out
}

// dropOutliers keeps observations inside [Q1 - 2·IQR, Q3 + 2·IQR].
func dropOutliers(obs []observation) []observation {
	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.value
	}
	q1 := preprocessing.Percentile(values, 25)
	q3 := preprocessing.Percentile(values, 75)
	iqr := q3 - q1
	lo, hi := q1-outlierIQRFactor*iqr, q3+outlierIQRFactor*iqr

	out := make([]observation, 0, len(obs))
	for _, o := range obs {
		if o.value >= lo && o.value <= hi {
			out = append(out, o)
		}
	}
	return out
}

func evaluate(yTrain, yTest, trainPred, testPred *mat.VecDense) (Evaluation, error) {
	r2Train, err := metrics.R2Score(yTrain, trainPred)
	if err != nil {
		return Evaluation{}, err
	}
	r2Test, err := metrics.R2Score(yTest, testPred)
	if err != nil {
		return Evaluation{}, err
	}
	mae, err := metrics.MAE(yTest, testPred)
	if err != nil {
		return Evaluation{}, err
	}
	rmse, err := metrics.RMSE(yTest, testPred)
	if err != nil {
		return Evaluation{}, err
	}
	mape, err := metrics.MAPE(yTest, testPred, mapeEpsilon)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		R2Train: round(r2Train, 4),
		R2Test:  round(r2Test, 4),
		MAE:     round(mae, 2),
		RMSE:    round(rmse, 2),
		BestParams: map[string]any{
			"n_estimators":  nEstimators,
			"max_depth":     maxDepth,
			"learning_rate": learningRate,
		},
		MAPE: round(mape, 2),
	}, nil
}

// forecast predicts the Horizon months after the last cleaned observation.
// History features are frozen at the last observed value.
func forecast(clean []observation, y []float64, scaler *preprocessing.RobustScaler,
	m *lightgbm.LGBMRegressor) (Forecast, error) {
	last := clean[len(clean)-1]
	yLast := y[len(y)-1]
	yPrev := yLast
	if len(y) > 1 {
		yPrev = y[len(y)-2]
	}

	fc := Forecast{
		PredictionTimePoints:  make([]string, 0, Horizon),
		PredictedResponseTime: make([]float64, 0, Horizon),
		PredictionExplanation: "Change request response time forecast for the next 6 months (gradient-boosted trees)",
	}
	X := mat.NewDense(Horizon, len(FeatureColumns), nil)
	for i := 1; i <= Horizon; i++ {
		label := AddMonths(last.cal, i)
		cal, _ := CalendarOf(label)
		X.SetRow(i-1, append(calendarRow(cal), yLast, yLast, 0, 0, 0, yLast, yPrev))
		fc.PredictionTimePoints = append(fc.PredictionTimePoints, label)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return Forecast{}, err
	}
	pred, err := m.Predict(scaled)
	if err != nil {
		return Forecast{}, err
	}
	for i := 0; i < Horizon; i++ {
		fc.PredictedResponseTime = append(fc.PredictedResponseTime, round(pred.At(i, 0), 2))
	}
	return fc, nil
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
