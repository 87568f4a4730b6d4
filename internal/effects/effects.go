package effects

import (
	aqm "github.com/aquamarinepk/aqm/log"

	"github.com/appetiteclub/tableside/internal/protocol"
)

// Notifier shows transient feedback to the diner. Presentation layers plug
// in toasts and animations; the default logs.
type Notifier interface {
	Toast(message string)
	Celebrate()
	Error(message string)
}

// Navigator performs page navigation on behalf of the core.
type Navigator interface {
	Navigate(route string)
}

// Runner executes the effect descriptors the protocol reducer emits, in
// order. It is the only place reducer side effects touch the outside world.
type Runner struct {
	notifier  Notifier
	navigator Navigator
	logger    aqm.Logger
}

// NewRunner wires a runner. Either collaborator may be nil; the effect is
// then logged and dropped.
func NewRunner(notifier Notifier, navigator Navigator, logger aqm.Logger) *Runner {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Runner{notifier: notifier, navigator: navigator, logger: logger}
}

// Run executes effects in emission order.
func (r *Runner) Run(effects []protocol.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case protocol.EffectToast:
			if r.notifier != nil {
				r.notifier.Toast(e.Message)
			} else {
				r.logger.Info("toast", "message", e.Message)
			}
		case protocol.EffectCelebrate:
			if r.notifier != nil {
				r.notifier.Celebrate()
			}
		case protocol.EffectError:
			if r.notifier != nil {
				r.notifier.Error(e.Message)
			} else {
				r.logger.Info("server error", "message", e.Message)
			}
		case protocol.EffectNavigate:
			if r.navigator != nil {
				r.navigator.Navigate(e.Route)
			} else {
				r.logger.Info("navigation requested", "route", e.Route)
			}
		default:
			r.logger.Debug("unhandled effect", "kind", string(e.Kind))
		}
	}
}

// LogNotifier is the terminal fallback Notifier.
type LogNotifier struct {
	Logger aqm.Logger
}

func (n LogNotifier) Toast(message string) {
	n.Logger.Info("toast", "message", message)
}

func (n LogNotifier) Celebrate() {
	n.Logger.Info("celebration")
}

func (n LogNotifier) Error(message string) {
	n.Logger.Errorf("server error: %s", message)
}
