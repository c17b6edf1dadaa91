package task

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phillarmonic/pf/internal/errors"
)

// Registry is the Task Table: every task of the root file and its includes,
// addressable by bare name, alias, `namespace.name` or namespace + name.
type Registry struct {
	mu              sync.RWMutex
	tasks           map[string][]*Task // bare name or alias -> candidates
	namespacedTasks map[string]*Task   // namespace.name -> task
	namespaces      []string           // include order, "" first
	sources         map[string]string  // namespace -> defining file
	taskOrder       []*Task            // preserve insertion order
}

// NewRegistry creates a new task registry
func NewRegistry() *Registry {
	return &Registry{
		tasks:           make(map[string][]*Task),
		namespacedTasks: make(map[string]*Task),
		sources:         make(map[string]string),
	}
}

// AddNamespace records a namespace and its source file. Namespaces are
// listed in the order they are added.
func (r *Registry) AddNamespace(name, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return
	}
	r.sources[name] = source
	r.namespaces = append(r.namespaces, name)
}

// Register registers a task
func (r *Registry) Register(task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[task.Namespace]; !exists {
		r.sources[task.Namespace] = task.Source
		r.namespaces = append(r.namespaces, task.Namespace)
	}

	for _, name := range append([]string{task.Name}, task.Aliases...) {
		key := qualify(task.Namespace, name)
		if _, exists := r.namespacedTasks[key]; exists {
			return fmt.Errorf("task '%s' already registered", key)
		}
	}
	for _, name := range append([]string{task.Name}, task.Aliases...) {
		r.namespacedTasks[qualify(task.Namespace, name)] = task
		r.tasks[name] = append(r.tasks[name], task)
	}
	r.taskOrder = append(r.taskOrder, task)
	return nil
}

// RegisterAlias adds a file-scope alias pointing at a task of the same
// namespace.
func (r *Registry) RegisterAlias(namespace, alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.namespacedTasks[qualify(namespace, target)]
	if !ok {
		return fmt.Errorf("alias '%s' points at unknown task '%s'", alias, target)
	}
	key := qualify(namespace, alias)
	if _, exists := r.namespacedTasks[key]; exists {
		return fmt.Errorf("task '%s' already registered", key)
	}
	r.namespacedTasks[key] = task
	r.tasks[alias] = append(r.tasks[alias], task)
	task.Aliases = append(task.Aliases, alias)
	return nil
}

// Get retrieves a task by bare name, alias or namespace.name. A bare name
// defined by the root file selects the root task even when included files
// reuse it; those stay reachable as `pf ns name`.
func (r *Registry) Get(name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch candidates := r.tasks[name]; len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
	default:
		for _, c := range candidates {
			if c.Namespace == "" {
				return c, nil
			}
		}
		forms := make([]string, len(candidates))
		for i, c := range candidates {
			forms[i] = c.Invocation()
		}
		return nil, &errors.UsageError{
			Message: fmt.Sprintf("task '%s' is defined in several files", name),
			Help:    "Qualify it: " + strings.Join(forms, ", "),
		}
	}

	if task, exists := r.namespacedTasks[name]; exists {
		return task, nil
	}
	return nil, r.notFound(name)
}

// GetIn retrieves a task from one namespace
func (r *Registry) GetIn(namespace, name string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sources[namespace]; !ok {
		return nil, errors.Usagef("unknown subcommand '%s'", namespace)
	}
	if task, exists := r.namespacedTasks[qualify(namespace, name)]; exists {
		return task, nil
	}
	return nil, &errors.UsageError{
		Message: fmt.Sprintf("task '%s' not found in subcommand '%s'", name, namespace),
		Help:    "Run 'pf list' to see the tasks of each subcommand",
	}
}

// Exists checks if a name selects exactly one task
func (r *Registry) Exists(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// HasNamespace reports whether name is an included file's subcommand.
func (r *Registry) HasNamespace(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sources[name]
	return ok && name != ""
}

// Namespaces returns namespace names in include order
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.namespaces...)
}

// Source returns the defining file of a namespace
func (r *Registry) Source(namespace string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sources[namespace]
}

// List returns all registered tasks in insertion order
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Task(nil), r.taskOrder...)
}

// ListByNamespace returns the tasks of one namespace in insertion order
func (r *Registry) ListByNamespace(namespace string) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []*Task
	for _, task := range r.taskOrder {
		if task.Namespace == namespace {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Names returns every name that selects a task, sorted, for completion
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tasks
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.taskOrder)
}

func (r *Registry) notFound(name string) error {
	err := &errors.UsageError{Message: fmt.Sprintf("task '%s' not found", name)}
	var near []string
	for candidate := range r.tasks {
		if strings.HasPrefix(candidate, name) || strings.HasPrefix(name, candidate) || levenshtein(candidate, name) <= 2 {
			near = append(near, candidate)
		}
	}
	if len(near) > 0 {
		sort.Strings(near)
		err.Help = "Did you mean: " + strings.Join(near, ", ") + "?"
	}
	return err
}

func qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(b)]
}
