package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes every registered metric to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
