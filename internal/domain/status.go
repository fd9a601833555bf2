package domain

// Role is the caller role a transition is evaluated against.
type Role int

const (
	RoleWorker Role = iota
	RoleAdmin
)

type transition struct {
	from TaskStatus
	to   TaskStatus
	role Role
}

// allowedTransitions is the full legality matrix. Workers act only on tasks
// they hold; admins may additionally force-close pending tasks. Terminal
// states have no outgoing edges for anyone — delete and recreate instead.
var allowedTransitions = map[transition]bool{
	{Pending, InProgress, RoleWorker}: true,
	{Pending, InProgress, RoleAdmin}:  true,

	{InProgress, Completed, RoleWorker}: true,
	{InProgress, Completed, RoleAdmin}:  true,
	{InProgress, Failed, RoleWorker}:    true,
	{InProgress, Failed, RoleAdmin}:     true,

	// Release back to the backlog for retry.
	{InProgress, Pending, RoleWorker}: true,
	{InProgress, Pending, RoleAdmin}:  true,

	// Administrative force-close.
	{Pending, Completed, RoleAdmin}: true,
	{Pending, Failed, RoleAdmin}:    true,
}

// CanTransition reports whether role may move a task from one status to another.
func CanTransition(from, to TaskStatus, role Role) bool {
	return allowedTransitions[transition{from, to, role}]
}

// TransitionEffects describes the column side effects of entering a status.
type TransitionEffects struct {
	SetStartedAt   bool // entering in_progress
	SetCompletedAt bool // entering a terminal state
	ClearProgress  bool // released to pending: started_at, completed_at, claimed_by reset
	IncrementRetry bool // release always counts; terminal failure counts when requested
}

// EffectsFor returns the side effects of a transition. incrRetry is the
// caller's request and only applies where the matrix permits counting.
func EffectsFor(to TaskStatus, incrRetry bool) TransitionEffects {
	switch to {
	case InProgress:
		return TransitionEffects{SetStartedAt: true}
	case Completed:
		return TransitionEffects{SetCompletedAt: true}
	case Failed:
		return TransitionEffects{SetCompletedAt: true, IncrementRetry: incrRetry}
	case Pending:
		return TransitionEffects{ClearProgress: true, IncrementRetry: true}
	}
	return TransitionEffects{}
}
