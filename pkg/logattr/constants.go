package logattr

import "log/slog"

func ServiceName(serviceName string) slog.Attr {
	return slog.String("service_name", serviceName)
}

func Component(component string) slog.Attr {
	return slog.String("component", component)
}

func MessageType(messageType string) slog.Attr {
	return slog.String("message_type", messageType)
}

func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

func SourceId(sourceId int64) slog.Attr {
	return slog.Int64("source_id", sourceId)
}

func EmployeeId(employeeId int64) slog.Attr {
	return slog.Int64("employee_id", employeeId)
}

func EventId(eventId string) slog.Attr {
	return slog.String("event_id", eventId)
}

func QueueName(queueName string) slog.Attr {
	return slog.String("queue_name", queueName)
}

func ExchangeName(exchangeName string) slog.Attr {
	return slog.String("exchange_name", exchangeName)
}

func Error(err string) slog.Attr {
	return slog.String("error", err)
}
