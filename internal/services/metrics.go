package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesSent counts canonical message rows created by AddMessageFor.
	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stored_messages_sent_total",
		Help: "Total number of messages stored for delivery.",
	})

	// inboxDelivered counts inbox (unread) rows created by fan-out.
	inboxDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stored_messages_inbox_delivered_total",
		Help: "Total number of per-user inbox entries created.",
	})

	// markedRead counts inbox rows removed, labelled by how they were removed.
	markedRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stored_messages_marked_read_total",
		Help: "Total number of inbox entries marked read.",
	}, []string{"mode"}) // mode: single|all
)

func init() {
	prometheus.MustRegister(messagesSent, inboxDelivered, markedRead)
}
