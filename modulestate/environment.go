package modulestate

// Environment is the kind of session the module was loaded into.
type Environment int

const (
	EnvironmentNormal Environment = iota
	// EnvironmentInteractive is a session without a main script, like the REPL.
	EnvironmentInteractive
	// EnvironmentNotebook is an interactive session hosted by a notebook kernel.
	EnvironmentNotebook
)

func (env Environment) String() string {
	switch env {
	case EnvironmentNormal:
		return "normal"
	case EnvironmentInteractive:
		return "interactive"
	case EnvironmentNotebook:
		return "notebook"
	}
	return "unknown"
}

func (env Environment) IsInteractive() bool {
	return env != EnvironmentNormal
}
