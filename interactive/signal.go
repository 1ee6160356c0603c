package interactive

import (
	"os"
	"os/signal"
)

// watchInterrupt turns SIGINT into an interrupt of the running submission
// until the returned stop function is called.
func (s *session) watchInterrupt() (stop func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigc:
				s.log.Info("interrupting ongoing request")
				s.Interrupt()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigc)
		close(done)
	}
}
