package events

import "time"

// Event is implemented by everything published on the bus.
type Event interface {
	Kind() string
	RunID() string
}

// Topic constants.
const (
	TopicTask     = "task"
	TopicWave     = "wave"
	TopicPipeline = "pipeline"
)

// Event kind constants.
const (
	KindTaskStarted      = "task.started"
	KindTaskFinished     = "task.finished"
	KindWaveStarted      = "wave.started"
	KindWaveEvaluated    = "wave.evaluated"
	KindPipelineFinished = "pipeline.finished"
)

// TaskStarted is published when a task is handed to the engine.
type TaskStarted struct {
	Run       string
	Task      string
	Wave      int
	Timestamp time.Time
}

func (e TaskStarted) Kind() string  { return KindTaskStarted }
func (e TaskStarted) RunID() string { return e.Run }

// TaskFinished is published when a task's result is collected.
type TaskFinished struct {
	Run          string
	Task         string
	Wave         int
	Status       string
	QualityScore int
	Duration     time.Duration
	Timestamp    time.Time
}

func (e TaskFinished) Kind() string  { return KindTaskFinished }
func (e TaskFinished) RunID() string { return e.Run }

// WaveStarted is published before a wave executes.
type WaveStarted struct {
	Run       string
	Wave      int
	Tasks     []string
	Timestamp time.Time
}

func (e WaveStarted) Kind() string  { return KindWaveStarted }
func (e WaveStarted) RunID() string { return e.Run }

// WaveEvaluated is published after the quality gate rules on a wave.
type WaveEvaluated struct {
	Run            string
	Wave           int
	Decision       string
	AverageQuality float64
	SuccessRate    float64
	Timestamp      time.Time
}

func (e WaveEvaluated) Kind() string  { return KindWaveEvaluated }
func (e WaveEvaluated) RunID() string { return e.Run }

// PipelineFinished is published once per run, whatever the outcome.
type PipelineFinished struct {
	Run       string
	Status    string
	Waves     int
	Elapsed   time.Duration
	Timestamp time.Time
}

func (e PipelineFinished) Kind() string  { return KindPipelineFinished }
func (e PipelineFinished) RunID() string { return e.Run }
