package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

// AlertNotifier forwards operational alerts to the alert webhook and counts
// them. It satisfies exchange.Alerter and reconciliation's alert hook.
type AlertNotifier struct {
	client     *webhook.Client
	webhookURL string
	logger     *logger.Logger
	alerts     *prometheus.CounterVec
}

func NewAlertNotifier(client *webhook.Client, webhookURL string, logger *logger.Logger) *AlertNotifier {
	return &AlertNotifier{
		client:     client,
		webhookURL: webhookURL,
		logger:     logger,
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_alerts_total",
				Help: "Operational alerts raised, by kind and delivery status",
			},
			[]string{"kind", "delivery"},
		),
	}
}

// MustRegister registers the alert counter with the provided registry
func (n *AlertNotifier) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(n.alerts)
}

// Notify never fails the caller; a delivery error is logged and counted.
func (n *AlertNotifier) Notify(ctx context.Context, alert webhook.Alert) {
	if err := n.client.SendAlert(ctx, n.webhookURL, alert); err != nil {
		n.alerts.WithLabelValues(alert.Kind, "failed").Inc()
		n.logger.Error("[AlertNotifier][Notify] delivery failed", map[string]string{
			"kind":      alert.Kind,
			"tenant_id": alert.TenantID,
			"error":     err.Error(),
		})
		return
	}
	n.alerts.WithLabelValues(alert.Kind, "sent").Inc()
}
