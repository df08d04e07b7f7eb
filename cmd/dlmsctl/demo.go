package main

import (
	"fmt"
	"time"

	"github.com/metergrid/godlms/axdr"
	"github.com/metergrid/godlms/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var demoVerbose bool

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "associate, read the clock and a register, write the register, and release",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().BoolVarP(&demoVerbose, "verbose", "v", false, "log every PDU exchanged")
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func runDemo(*cobra.Command, []string) error {
	transport := newLoopbackMeter()
	settings := session.NewSettingsWithNoAuthentication()
	sess := session.New(transport, settings)
	sess.SetTimeSource(systemClock{})

	if demoVerbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer logger.Sync()
		sess.SetLogger(logger.Sugar())
	}

	if err := sess.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("associated (state=%v)\n", sess.State())
	defer func() {
		if err := sess.Disconnect(); err != nil {
			fmt.Printf("disconnect: %v\n", err)
		}
	}()

	clock, err := sess.ReadClock()
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	fmt.Printf("clock: %s\n", clock)

	registerObis, err := axdr.NewObisFromString("1-0:1.8.0.255")
	if err != nil {
		return fmt.Errorf("parsing register obis: %w", err)
	}
	const registerClassId = 3
	const registerAttribute = 2

	before, err := sess.Read(registerClassId, registerObis, registerAttribute, nil)
	if err != nil {
		return fmt.Errorf("read register: %w", err)
	}
	fmt.Printf("register before write: %v\n", before.Value)

	if err := sess.Write(registerClassId, registerObis, registerAttribute, nil,
		axdr.Data{Tag: axdr.TagDoubleLongUnsigned, Value: uint32(99999)}); err != nil {
		return fmt.Errorf("write register: %w", err)
	}

	after, err := sess.Read(registerClassId, registerObis, registerAttribute, nil)
	if err != nil {
		return fmt.Errorf("read register after write: %w", err)
	}
	fmt.Printf("register after write: %v\n", after.Value)

	return nil
}
