package tele

import (
	"testing"

	"github.com/juju/errors"
)

// Mock scripts connect/publish outcomes for tests. Results are consumed in
// call order; past the end of a script every call succeeds.
type Mock struct {
	T                  testing.TB
	Connected          bool
	ConnectErrs        []error
	PublishErrs        []error
	DisconnectAfterErr bool // a failed publish also drops the session

	ConnectCalls int
	PublishCalls int
	ServiceCalls int
	Closed       bool
	Published    [][]byte
}

func (self *Mock) Connect() error {
	self.ConnectCalls++
	var err error
	if len(self.ConnectErrs) > 0 {
		err, self.ConnectErrs = self.ConnectErrs[0], self.ConnectErrs[1:]
	}
	if err != nil {
		self.T.Logf("mock connect err=%v", err)
		self.Connected = false
		return err
	}
	self.Connected = true
	return nil
}

func (self *Mock) Publish(payload []byte) error {
	self.PublishCalls++
	var err error
	if len(self.PublishErrs) > 0 {
		err, self.PublishErrs = self.PublishErrs[0], self.PublishErrs[1:]
	}
	if err != nil {
		self.T.Logf("mock publish err=%v", err)
		if self.DisconnectAfterErr {
			self.Connected = false
		}
		return err
	}
	if !self.Connected {
		return errors.Errorf("mock: publish while disconnected")
	}
	self.T.Logf("mock delivered payload=%s", payload)
	self.Published = append(self.Published, payload)
	return nil
}

func (self *Mock) Service()          { self.ServiceCalls++ }
func (self *Mock) IsConnected() bool { return self.Connected }
func (self *Mock) Close()            { self.Closed = true }
