// Command isdnctl drives one PRI/BRI D-channel from a config file or flags,
// logging every Q.931 event to stderr until interrupted (spec.md §6
// "External interfaces").
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ispbx/goisdn/device"
	"github.com/ispbx/goisdn/pri"
	"github.com/ispbx/goisdn/q921"
	"github.com/ispbx/goisdn/q931"
)

// config is the on-disk shape for -config; flags of the same name override
// whatever the file sets.
type config struct {
	Device  string `yaml:"device"`
	Role    string `yaml:"role"`    // "network" or "user"
	PTMP    bool   `yaml:"ptmp"`
	Switch  string `yaml:"switch"`  // dialect name, see switchByName
}

var (
	configFlag = pflag.StringP("config", "c", "", "YAML `file` with device/role/switch settings.")
	deviceFlag = pflag.StringP("device", "d", "", "D-channel TTY `path`, e.g. /dev/ttyPRI0.")
	roleFlag   = pflag.String("role", "user", "Link role: \"network\" or \"user\".")
	ptmpFlag   = pflag.Bool("ptmp", false, "Point-to-multipoint D-channel (BRI).")
	switchFlag = pflag.String("switch", "euro-isdn-e1", "Switch `dialect`: "+switchNames)
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          filepath.Base(os.Args[0]),
		ReportTimestamp: true,
	})

	pflag.Parse()
	cfg := mustConfig(logger)

	dev, err := device.OpenSerial(cfg.Device)
	if err != nil {
		logger.Fatal("opening D-channel device failed", "device", cfg.Device, "err", err)
	}
	defer dev.Close()

	sw, err := switchByName(cfg.Switch)
	if err != nil {
		logger.Fatal("unknown switch dialect", "switch", cfg.Switch, "err", err)
	}

	role := q921.RoleUser
	if cfg.Role == "network" {
		role = q921.RoleNetwork
	}

	var ctrl *pri.Controller
	switch {
	case role == q921.RoleNetwork && cfg.PTMP:
		ctrl = pri.NewPTMPNetwork(dev, sw, pri.WithLogger(logger))
	case cfg.PTMP:
		ctrl = pri.NewPTMPUser(dev, sw, pri.WithLogger(logger))
	default:
		ctrl = pri.New(dev, role, sw, pri.WithLogger(logger))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	ctrl.Start()
	defer ctrl.Stop()

	frames := make(chan error, 1)
	go func() {
		for {
			frames <- ctrl.ReadFrame()
		}
	}()

	for {
		for {
			ev, ok := ctrl.CheckEvent()
			if !ok {
				break
			}
			logger.Info("call event", "kind", ev.Kind, "message", ev.Message)
		}

		ctrl.ScheduleRun()
		timeout, hasDeadline := ctrl.ScheduleNext()
		if !hasDeadline {
			timeout = time.Second
		}

		select {
		case <-signals:
			logger.Info("shutting down")
			return
		case err := <-frames:
			if err != nil {
				logger.Error("device read failed", "err", err)
				return
			}
		case <-time.After(timeout):
		}
	}
}

func mustConfig(logger *log.Logger) config {
	cfg := config{
		Device: *deviceFlag,
		Role:   *roleFlag,
		PTMP:   *ptmpFlag,
		Switch: *switchFlag,
	}
	if *configFlag != "" {
		data, err := os.ReadFile(*configFlag)
		if err != nil {
			logger.Fatal("reading config file failed", "path", *configFlag, "err", err)
		}
		var fileCfg config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			logger.Fatal("parsing config file failed", "path", *configFlag, "err", err)
		}
		if fileCfg.Device != "" && !pflag.CommandLine.Changed("device") {
			cfg.Device = fileCfg.Device
		}
		if fileCfg.Role != "" && !pflag.CommandLine.Changed("role") {
			cfg.Role = fileCfg.Role
		}
		if fileCfg.Switch != "" && !pflag.CommandLine.Changed("switch") {
			cfg.Switch = fileCfg.Switch
		}
		if !pflag.CommandLine.Changed("ptmp") {
			cfg.PTMP = fileCfg.PTMP
		}
	}
	if cfg.Device == "" {
		logger.Fatal("no D-channel device given; pass -device or set it in -config")
	}
	return cfg
}

const switchNames = "att4ess, dms100, ni1, ni2, lucent5e, euro-isdn-e1, euro-isdn-t1, gr303-eoc, gr303-tmc, qsig"

var switchesByName = map[string]q931.Switch{
	"att4ess":      q931.SwitchATT4ESS,
	"dms100":       q931.SwitchDMS100,
	"ni1":          q931.SwitchNI1,
	"ni2":          q931.SwitchNI2,
	"lucent5e":     q931.SwitchLucent5E,
	"euro-isdn-e1": q931.SwitchEuroISDNE1,
	"euro-isdn-t1": q931.SwitchEuroISDNT1,
	"gr303-eoc":    q931.SwitchGR303EOC,
	"gr303-tmc":    q931.SwitchGR303TMC,
	"qsig":         q931.SwitchQSIG,
}

func switchByName(name string) (q931.Switch, error) {
	sw, ok := switchesByName[name]
	if !ok {
		return q931.SwitchUnknown, fmt.Errorf("no such switch dialect %q (want one of: %s)", name, switchNames)
	}
	return sw, nil
}
