package domain

// Types served by the artemis task-unit runtime.

type ArtemisTask struct {
	TaskCode  string `json:"task_code"`
	Impl      string `json:"impl"`
	Module    string `json:"module"`
	IsDynamic bool   `json:"is_dynamic,omitempty"`
}

type TaskYAML struct {
	Content string `json:"content"`
}

type TaskUnitNode struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Type     string         `json:"type"` // file|dir
	Children []TaskUnitNode `json:"children,omitempty"`
}

type TaskUnitsTree struct {
	Root  string         `json:"root"`
	Items []TaskUnitNode `json:"items"`
}

type TaskUnitFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type TaskUnitRegisterRequest struct {
	TaskCode  string `json:"task_code"`
	Module    string `json:"module"`
	ClassName string `json:"class_name"`
}

type UnregisteredTask struct {
	Module    string `json:"module"`
	ClassName string `json:"class_name"`
	TaskCode  string `json:"task_code"`
}
