package domain

// Project is the aggregate root for one construction/fabrication job.
// Tasks, materials, and expenses belong to exactly one project and carry
// its ID; they have no independent lifecycle.
type Project struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ClientName string  `json:"client_name,omitempty"`
	Location   string  `json:"location,omitempty"`
	StartDate  string  `json:"start_date,omitempty" format:"date"`
	Deadline   string  `json:"deadline,omitempty" format:"date"`
	Budget     float64 `json:"budget"`
	Type       string  `json:"type,omitempty"`
	Contractor string  `json:"contractor,omitempty"`
	Engineers  string  `json:"engineers,omitempty"`
	Contact1   string  `json:"contact1,omitempty"`
	Contact2   string  `json:"contact2,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

// Task statuses. Status is derived from progress and the two are always
// written together: 100 is Completed, 0 is Pending, anything else is
// In Progress.
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
)

// Task is one of the fixed workflow steps of a project. Its ID embeds the
// workflow ordinal ({ProjectID}-T{n}), which defines the total order of the
// project's tasks.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Responsible string `json:"responsible,omitempty"`
	DueDate     string `json:"due_date,omitempty" format:"date"`
	Progress    int    `json:"progress"`
	Status      string `json:"status" enum:"Pending,In Progress,Completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Material is a tracked supply item. The name is the natural key within a
// project. Dispatch entries are deltas accumulated onto the stored total.
type Material struct {
	ProjectID  string  `json:"project_id"`
	Name       string  `json:"name"`
	Required   float64 `json:"required_quantity"`
	Dispatched float64 `json:"dispatched_quantity"`
	Unit       string  `json:"unit,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

// Expense is a dated monetary entry against a project's budget. Immutable
// once recorded.
type Expense struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Date        string  `json:"date" format:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category,omitempty"`
	RecordedBy  string  `json:"recorded_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Event is an append-only audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// User is a dashboard login. PasswordHash is a SHA-256 hex digest.
type User struct {
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}
