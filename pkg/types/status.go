package types

// Status is the lifecycle state shared by tasks and assignments.
type Status string

const (
	StatusPending   Status = "pending"   // StatusPending is the initial state before decomposition.
	StatusQueued    Status = "queued"    // StatusQueued waits for a session lease.
	StatusRunning   Status = "running"   // StatusRunning holds a session and a live runner.
	StatusPaused    Status = "paused"    // StatusPaused is suspended at a checkpoint.
	StatusCompleted Status = "completed" // StatusCompleted finished with a result.
	StatusFailed    Status = "failed"    // StatusFailed finished with an error.
	StatusStopped   Status = "stopped"   // StatusStopped was canceled.
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusRunning, StatusPaused,
		StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// DeriveStatus computes a task status from the statuses of its assignments.
//
// Precedence: failed, stopped (rest terminal), running, paused (none running
// or queued), completed (all), queued, pending.
func DeriveStatus(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusPending
	}

	var failed, stopped, running, paused, queued, completed, terminal int
	for _, s := range statuses {
		switch s {
		case StatusFailed:
			failed++
		case StatusStopped:
			stopped++
		case StatusRunning:
			running++
		case StatusPaused:
			paused++
		case StatusQueued:
			queued++
		case StatusCompleted:
			completed++
		}
		if s.IsTerminal() {
			terminal++
		}
	}

	switch {
	case failed > 0:
		return StatusFailed
	case stopped > 0 && terminal == len(statuses):
		return StatusStopped
	case running > 0:
		return StatusRunning
	case paused > 0 && queued == 0:
		return StatusPaused
	case completed == len(statuses):
		return StatusCompleted
	case queued > 0:
		return StatusQueued
	default:
		return StatusPending
	}
}

// Health is the probed condition of a browser session.
type Health string

const (
	HealthHealthy      Health = "healthy"
	HealthDegraded     Health = "degraded"
	HealthUnresponsive Health = "unresponsive"
	HealthDead         Health = "dead"
)

// Worse returns the next health level after one more failed probe.
func (h Health) Worse() Health {
	switch h {
	case HealthHealthy:
		return HealthDegraded
	case HealthDegraded:
		return HealthUnresponsive
	default:
		return HealthDead
	}
}
