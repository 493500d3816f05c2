package prediction

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/HaoJinjin/open-soda/core/model"
	"github.com/HaoJinjin/open-soda/internal/dataset"
	"github.com/HaoJinjin/open-soda/internal/features"
	"github.com/HaoJinjin/open-soda/metrics"
	"github.com/HaoJinjin/open-soda/pkg/errors"
	"github.com/HaoJinjin/open-soda/pkg/log"
	"github.com/HaoJinjin/open-soda/preprocessing"
	"github.com/HaoJinjin/open-soda/sklearn/model_selection"
)

// Defaults of the prediction pipeline.
const (
	DefaultTestSize = 0.3
	DefaultSeed     = 42
	DefaultTarget   = "technical_fork"
)

// Pipeline runs feature selection, the model bank and result assembly.
type Pipeline struct {
	testSize float64
	seed     uint64
	bank     []Candidate
	now      func() time.Time
	logger   log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTestSize sets the held-out fraction (default 0.3).
func WithTestSize(size float64) Option {
	return func(p *Pipeline) { p.testSize = size }
}

// WithSeed sets the split and model seed (default 42).
func WithSeed(seed uint64) Option {
	return func(p *Pipeline) { p.seed = seed }
}

// WithBank replaces the model bank.
func WithBank(bank []Candidate) Option {
	return func(p *Pipeline) { p.bank = bank }
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline with the default bank.
func NewPipeline(options ...Option) *Pipeline {
	p := &Pipeline{
		testSize: DefaultTestSize,
		seed:     DefaultSeed,
		now:      time.Now,
		logger:   log.GetLoggerWithName("prediction"),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.bank == nil {
		p.bank = DefaultBank(p.seed)
	}
	return p
}

// RunFile loads the CSV at path and runs the pipeline on it.
func (p *Pipeline) RunFile(path, target string) (*Result, error) {
	table, err := dataset.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "prediction pipeline")
	}
	return p.Run(table, target)
}

// Run predicts target from table. Every error is wrapped once with
// "prediction pipeline"; input problems keep their *errors.InputError.
func (p *Pipeline) Run(table *dataset.Table, target string) (*Result, error) {
	res, err := p.run(table, target)
	if err != nil {
		code := log.ErrorFitFailed
		if errors.IsInputError(err) {
			code = log.ErrorInvalidInput
		}
		p.logger.Error("Prediction failed", err, log.TargetColumnKey, target, log.ErrorCodeKey, code)
		return nil, errors.Wrapf(err, "prediction pipeline")
	}
	return res, nil
}

// design is the scaled train/test data shared by every bank model.
type design struct {
	split   model_selection.Split
	xTrain  mat.Matrix
	xTest   mat.Matrix
	yTrainS *mat.Dense
	yTrain  *mat.VecDense
	yTest   *mat.VecDense
	yScaler *preprocessing.StandardScaler
}

func (p *Pipeline) run(table *dataset.Table, target string) (*Result, error) {
	started := p.now()
	logger := p.logger.With(log.TargetColumnKey, target)

	logger.Debug("Selecting features", log.PhaseKey, log.PhasePreprocessing, log.SamplesKey, table.Len())
	fs, err := features.Select(table, target)
	if err != nil {
		return nil, err
	}

	d, err := p.prepare(fs)
	if err != nil {
		return nil, err
	}

	results := make([]*ModelResult, 0, len(p.bank))
	for _, c := range p.bank {
		r, err := p.fit(c, d)
		if err != nil {
			return nil, err
		}
		logger.Info("Model evaluated",
			log.PhaseKey, log.PhaseTraining,
			log.ModelNameKey, r.Name,
			log.R2ScoreKey, r.R2Test,
			log.RMSEKey, r.RMSE,
			log.ScoreKey, r.Score,
		)
		if pg, ok := r.Model.(model.ParameterGetter); ok {
			logger.Debug("Model parameters", log.ModelNameKey, r.Name, log.ModelParamsKey, pg.GetParams())
		}
		results = append(results, r)
	}

	best := SelectBest(results)
	if best < 0 {
		return nil, errors.NewValueError("SelectBest", "model bank is empty")
	}
	winner := results[best]
	logger.Info("Model selected", log.PhaseKey, log.PhaseSelection, log.ModelNameKey, winner.Name)

	res, err := p.assemble(table, target, fs, d, results, best)
	if err != nil {
		return nil, err
	}
	logger.Debug("Result assembled",
		log.PhaseKey, log.PhaseAssembly,
		log.DurationMsKey, p.now().Sub(started).Milliseconds(),
	)
	return res, nil
}

// prepare splits the feature set and standardizes X and y on the train
// partition.
func (p *Pipeline) prepare(fs *features.FeatureSet) (*design, error) {
	split, err := model_selection.TrainTestSplit(fs.Len(), p.testSize, p.seed)
	if err != nil {
		return nil, err
	}
	X := fs.Matrix()
	y := fs.Target

	xScaler := preprocessing.NewStandardScalerDefault()
	xTrain, err := xScaler.FitTransform(model_selection.TakeRows(X, split.Train))
	if err != nil {
		return nil, err
	}
	xTest, err := xScaler.Transform(model_selection.TakeRows(X, split.Test))
	if err != nil {
		return nil, err
	}

	yTrainRaw := model_selection.TakeValues(y, split.Train)
	yScaler := preprocessing.NewStandardScalerDefault()
	yTrainS, err := yScaler.FitTransform(mat.NewDense(len(yTrainRaw), 1, yTrainRaw))
	if err != nil {
		return nil, err
	}
	yTest := model_selection.TakeValues(y, split.Test)

	return &design{
		split:   split,
		xTrain:  xTrain,
		xTest:   xTest,
		yTrainS: mat.DenseCopyOf(yTrainS),
		yTrain:  mat.NewVecDense(len(yTrainRaw), yTrainRaw),
		yTest:   mat.NewVecDense(len(yTest), yTest),
		yScaler: yScaler,
	}, nil
}

// fit trains one candidate and scores it on both partitions. Panics in the
// model become *errors.PanicError.
func (p *Pipeline) fit(c Candidate, d *design) (*ModelResult, error) {
	m := c.New()
	var trainPred, testPred *mat.VecDense
	err := errors.SafeExecute(c.Name+".Fit", func() error {
		if err := m.Fit(d.xTrain, d.yTrainS); err != nil {
			return err
		}
		var err error
		if trainPred, err = p.predict(m, d.xTrain, d.yScaler); err != nil {
			return err
		}
		testPred, err = p.predict(m, d.xTest, d.yScaler)
		return err
	})
	if err != nil {
		return nil, errors.NewModelError(c.Name+".Fit", "fit failed", err)
	}

	r := &ModelResult{Name: c.Name, Model: m}
	if r.R2Train, err = metrics.R2Score(d.yTrain, trainPred); err != nil {
		return nil, err
	}
	if r.R2Test, err = metrics.R2Score(d.yTest, testPred); err != nil {
		return nil, err
	}
	if r.RMSE, err = metrics.RMSE(d.yTest, testPred); err != nil {
		return nil, err
	}
	if r.MAE, err = metrics.MAE(d.yTest, testPred); err != nil {
		return nil, err
	}
	r.OverfittingGap = r.R2Train - r.R2Test
	r.Score = SelectionScore(r.R2Train, r.R2Test)
	r.YTrue = mat.Col(nil, 0, d.yTest)
	r.YPred = mat.Col(nil, 0, testPred)
	return r, nil
}

// predict returns predictions of m on X on the original target scale.
func (p *Pipeline) predict(m model.Predictor, X mat.Matrix, yScaler *preprocessing.StandardScaler) (*mat.VecDense, error) {
	scaled, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	raw, err := yScaler.InverseTransform(scaled)
	if err != nil {
		return nil, err
	}
	out := metrics.ColumnVec(raw)
	if err := errors.CheckNumericalStability("Predict", out.RawVector().Data, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) assemble(table *dataset.Table, target string, fs *features.FeatureSet,
	d *design, results []*ModelResult, best int) (*Result, error) {
	winner := results[best]

	exp, err := winner.Model.Explain()
	if err != nil {
		return nil, err
	}
	importances, err := Importances(fs.Names, exp)
	if err != nil {
		return nil, err
	}

	comparison := make(map[string]Comparison, len(results))
	for i, r := range results {
		comparison[r.Name] = Comparison{
			R2Train:        r.R2Train,
			R2Test:         r.R2Test,
			RMSE:           r.RMSE,
			MAE:            r.MAE,
			OverfittingGap: r.OverfittingGap,
			Score:          r.Score,
			Selected:       i == best,
		}
	}

	records := make([]PredictionRecord, len(d.split.Test))
	for i, idx := range d.split.Test {
		row := fs.Rows[idx]
		records[i] = NewRecord(ProjectName(table, row), winner.YTrue[i], winner.YPred[i])
	}

	return &Result{
		Metadata: Metadata{
			TargetColumn:   target,
			BestModel:      winner.Name,
			FeaturesUsed:   append([]string(nil), fs.Names...),
			TotalSamples:   table.Len(),
			ValidSamples:   fs.Len(),
			TrainSamples:   len(d.split.Train),
			TestSamples:    len(d.split.Test),
			TargetEncoding: string(fs.Encoding),
			Timestamp:      p.now().Format(time.RFC3339),
		},
		ModelComparison:   comparison,
		FeatureImportance: importances,
		Predictions:       records,
	}, nil
}
