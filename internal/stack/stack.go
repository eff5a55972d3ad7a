package stack

// Status is the derived state of a stack.
type Status string

const (
	StatusUnknown          Status = "unknown"
	StatusCreatedFile      Status = "created_file"  // compose file on disk, nothing deployed
	StatusCreatedStack     Status = "created_stack" // containers created, none started
	StatusRunning          Status = "running"
	StatusExited           Status = "exited"
	StatusRunningAndExited Status = "running_and_exited"
	StatusUnhealthy        Status = "unhealthy"
)

// Started reports whether the stack has running containers.
func (s Status) Started() bool {
	return s == StatusRunning || s == StatusRunningAndExited || s == StatusUnhealthy
}

// Stack is the row shown in the stacks table.
type Stack struct {
	Name            string   `json:"name"`
	Status          Status   `json:"status"`
	Started         bool     `json:"started"`
	Managed         bool     `json:"managed"` // has a compose file in the stacks dir
	ComposeFileName string   `json:"composeFileName"`
	Services        int      `json:"services"` // declared in the compose file
	Containers      int      `json:"containers"`
	Running         int      `json:"running"`
	Images          []string `json:"images"`
}
