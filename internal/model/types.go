package model

import "time"

// Instance documents follow the external schema: snake_case keys, the same
// in JSON and YAML.

type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

type Depot struct {
	ID  int     `json:"id" yaml:"id"`
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

type Agent struct {
	ID            int      `json:"id" yaml:"id"`
	Name          string   `json:"name,omitempty" yaml:"name,omitempty"`
	Skills        []string `json:"skills" yaml:"skills"`
	MaxTasks      int      `json:"max_tasks,omitempty" yaml:"max_tasks,omitempty"`
	ShiftDuration float64  `json:"shift_duration,omitempty" yaml:"shift_duration,omitempty"`
	Home          *Point   `json:"home,omitempty" yaml:"home,omitempty"`
}

type Task struct {
	ID            int     `json:"id" yaml:"id"`
	RequiredSkill string  `json:"required_skill" yaml:"required_skill"`
	Lat           float64 `json:"lat" yaml:"lat"`
	Lon           float64 `json:"lon" yaml:"lon"`
	Duration      float64 `json:"duration" yaml:"duration"`
	TimeWindowEnd float64 `json:"time_window_end,omitempty" yaml:"time_window_end,omitempty"`
}

type Instance struct {
	Depot  Depot   `json:"depot" yaml:"depot"`
	Agents []Agent `json:"agents" yaml:"agents"`
	Tasks  []Task  `json:"tasks" yaml:"tasks"`
}

// AgentRoute is one entry of the result mapping.
type AgentRoute struct {
	Route         []int   `json:"route" yaml:"route"`
	VisitedTasks  []int   `json:"visited_tasks" yaml:"visited_tasks"`
	TotalDistance float64 `json:"total_distance" yaml:"total_distance"`
}

type SolveStats struct {
	Backend     string  `json:"backend"`
	Variables   int     `json:"variables"`
	Constraints int     `json:"constraints"`
	Integers    int     `json:"integers"`
	BigM        float64 `json:"bigM"`
	WarmStart   bool    `json:"warmStart"`
	Seed        string  `json:"seed,omitempty"`
	Bound       float64 `json:"bound,omitempty"`
	Nodes       int     `json:"nodes"`
	Objective   float64 `json:"objective"`
	SolveMs     int64   `json:"solveMs"`
}

// Result keys routes by agent id. Routes is empty, never partial, unless
// Status is "optimal".
type Result struct {
	Status        string             `json:"status"`
	Routes        map[int]AgentRoute `json:"routes"`
	TotalDistance float64            `json:"total_distance"`
	Uncovered     []string           `json:"uncovered_skills,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Stats         SolveStats         `json:"stats"`
}

// Read models for API responses

type InstanceRecord struct {
	ID        string    `json:"id"`
	Revision  int       `json:"revision"`
	Instance  Instance  `json:"instance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Solve run lifecycle.
const (
	RunQueued  = "queued"
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
	RunStale   = "stale"
)

type SolveRun struct {
	ID          string     `json:"id"`
	InstanceID  string     `json:"instanceId"`
	Revision    int        `json:"revision"`
	Status      string     `json:"status"`
	Stage       string     `json:"stage,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CallbackURL string     `json:"callbackUrl,omitempty"`
	Secret      string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type SolveRequest struct {
	CallbackURL string `json:"callbackUrl,omitempty"`
	Secret      string `json:"secret,omitempty"`
}

type TaskPatch struct {
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	RequiredSkill *string  `json:"required_skill,omitempty"`
	Duration      *float64 `json:"duration,omitempty"`
	TimeWindowEnd *float64 `json:"time_window_end,omitempty"`
}

type DepotPatch struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Event is a solve progress notification.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	SolveID string    `json:"solveId"`
	Stage   string    `json:"stage,omitempty"`
	Status  string    `json:"status,omitempty"`
	TS      time.Time `json:"ts"`
}

// Event types.
const (
	EventStage = "solve.stage"
	EventDone  = "solve.done"
)
