package log

import "log/slog"

func ExecutionID[T ~string](id T) slog.Attr {
	return slog.String("execution_id", string(id))
}

func WorkflowID[T ~string](id T) slog.Attr {
	return slog.String("workflow_id", string(id))
}

func StepName[T ~string](name T) slog.Attr {
	return slog.String("step", string(name))
}

func FunctionName[T ~string](name T) slog.Attr {
	return slog.String("function", string(name))
}

func CallID[T ~string](id T) slog.Attr {
	return slog.String("call_id", string(id))
}

func Status[T ~string](status T) slog.Attr {
	return slog.String("status", string(status))
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
