package uart

import (
	"errors"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// Stats counts the outcome of transactions.
type Stats struct {
	Reads           int `json:"reads"`
	Writes          int `json:"writes"`
	Transactions    int `json:"transactions"`
	NoReply         int `json:"no_reply"`
	IncompleteFrame int `json:"incomplete_frame"`
	ChecksumErrors  int `json:"checksum_errors"`
	OtherErrors     int `json:"other_errors"`
	FailedReads     int `json:"failed_reads"`
}

// Client reads and writes registers of one driver.
type Client struct {
	tr   Transceiver
	addr byte
	conf Config

	lock     sync.Mutex
	stats    Stats
	crcError bool
}

// NewClient creates a Client for the driver at addr.
func NewClient(tr Transceiver, addr byte, conf Config) *Client {
	return &Client{tr: tr, addr: addr, conf: conf.withDefaults()}
}

// Address returns the slave address.
func (c *Client) Address() byte {
	return c.addr
}

// Read reads a register, retrying up to MaxRetries transactions.
func (c *Client) Read(reg byte) (uint32, error) {
	req := trinamic.ReadRequest(c.addr, reg)
	var last error
	for i := 0; i < c.conf.MaxRetries; i++ {
		out, err := c.tr.Transact(req, c.conf.AbortWindow)
		c.conf.Clock.Sleep(c.conf.ReplyDelay)
		if err == nil {
			reply := trinamic.ReplyFromUint64(out)
			if err = reply.ValidateFor(reg); err == nil {
				c.record(true, nil)
				return reply.Value(), nil
			}
		}
		c.record(false, err)
		glog.V(2).Infof("read %s from %d attempt %d: %v", trinamic.RegisterName(reg), c.addr, i+1, err)
		last = err
	}
	c.lock.Lock()
	c.stats.FailedReads++
	c.crcError = true
	c.lock.Unlock()
	return 0, &RetryError{Reg: reg, Attempts: c.conf.MaxRetries, Last: last}
}

// Write writes a register. Writes are not acknowledged by the driver, so
// failures are only logged.
func (c *Client) Write(reg byte, value uint32) {
	if err := c.tr.Send(trinamic.WriteDatagram(c.addr, reg, value)); err != nil {
		glog.Warningf("write %s to %d: %v", trinamic.RegisterName(reg), c.addr, err)
	}
	c.lock.Lock()
	c.stats.Writes++
	c.lock.Unlock()
}

// CRCError tells if the last read exhausted its retries.
func (c *Client) CRCError() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.crcError
}

// Stats returns a snapshot of the counters.
func (c *Client) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

func (c *Client) record(ok bool, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stats.Transactions++
	if ok {
		c.stats.Reads++
		c.crcError = false
		return
	}
	var crcErr *trinamic.ChecksumError
	switch {
	case errors.Is(err, ErrNoReply):
		c.stats.NoReply++
	case errors.Is(err, ErrIncompleteFrame):
		c.stats.IncompleteFrame++
	case errors.As(err, &crcErr), errors.Is(err, trinamic.ErrZeroChecksum):
		c.stats.ChecksumErrors++
	default:
		c.stats.OtherErrors++
	}
}
