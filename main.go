package main

import (
	"bufio"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/scheduler"
	"github.com/tsinghua-fib-lab/intersection-sim/task"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
)

// Version 程序版本
const Version = "1.2.0"

var (
	// 配置文件路径，为空时使用内置默认配置
	configPath = flag.String("config", "", "config file path (empty means built-in defaults)")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")

	// 常用配置的命令行覆盖项
	duration   = flag.Int("duration", config.DefaultDurationSec, "模拟时长（秒）")
	arrivalMin = flag.Int("arrival-min", config.DefaultArrivalMinSec, "最小车辆到达间隔（秒）")
	arrivalMax = flag.Int("arrival-max", config.DefaultArrivalMaxSec, "最大车辆到达间隔（秒）")
	quantum    = flag.Float64("quantum", config.DefaultQuantumSec, "调度时间片（秒）")
	algorithm  = flag.String("algorithm", config.DefaultAlgorithm,
		"调度算法（sjf multilevel priority srtf sjf-aging sjf-enhanced sjf-predictive）")
	seed = flag.Uint64("seed", 0, "随机数种子（0为按时间生成）")

	noColor   = flag.Bool("no-color", false, "状态面板禁用ANSI颜色")
	benchmark = flag.Bool("benchmark", false, "基准模式：固定60秒、关闭状态面板、结束后输出汇总")
	version   = flag.Bool("version", false, "输出版本号后退出")

	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "main")
)

const benchmarkDurationSec = 60

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	if *version {
		fmt.Printf("intersection-sim %s\n", Version)
		return
	}

	c := loadConfig()
	applyFlagOverrides(&c)
	if *benchmark {
		c.Control.Duration = benchmarkDurationSec
		task.SetShowDisplay(false)
		log.Infof("benchmark mode: %ds run", benchmarkDurationSec)
	}

	t := task.NewContext(c, *noColor)
	if err := t.Start(); err != nil {
		log.Panicf("start failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	quitCh := make(chan struct{})
	go keyLoop(t, quitCh)

	select {
	case <-t.Finished():
	case sig := <-sigCh:
		log.Infof("signal %v, shutting down", sig)
	case <-quitCh:
	}
	t.Stop()
	printSummary(t)
}

// loadConfig 加载配置
// 说明：优先级 config-data > config文件 > 内置默认
func loadConfig() config.Config {
	var c config.Config
	var file []byte
	var err error
	if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else {
		return c
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)
	return c
}

// applyFlagOverrides 把命令行上显式给出的配置项覆盖进配置
func applyFlagOverrides(c *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			c.Control.Duration = *duration
		case "arrival-min":
			c.Control.Arrival.Min = *arrivalMin
		case "arrival-max":
			c.Control.Arrival.Max = *arrivalMax
		case "quantum":
			c.Scheduler.Quantum = *quantum
		case "algorithm":
			c.Control.Algorithm = *algorithm
		case "seed":
			c.Control.Seed = *seed
		}
	})
	if _, err := scheduler.ParseAlgorithm(c.Control.Algorithm); c.Control.Algorithm != "" && err != nil {
		log.Panicf("%v", err)
	}
}

// keyLoop 交互控制线程
// 功能：读取标准输入的单键命令并执行
// 说明：1-3切换算法，p或空格暂停/恢复，e触发紧急车辆，
// r重置，h帮助，q退出
func keyLoop(t *task.Context, quitCh chan<- struct{}) {
	reader := bufio.NewReader(os.Stdin)
	for {
		ch, err := reader.ReadByte()
		if err != nil {
			return
		}
		switch ch {
		case '1':
			switchAlgorithm(t, scheduler.AlgorithmSJF)
		case '2':
			switchAlgorithm(t, scheduler.AlgorithmMultilevelFeedback)
		case '3':
			switchAlgorithm(t, scheduler.AlgorithmPriorityRR)
		case 'p', ' ':
			t.TogglePause()
		case 'e':
			if laneID := t.TriggerEmergency(); laneID >= 0 {
				fmt.Printf("emergency vehicle dispatched to lane %d\n", laneID)
			}
		case 'r':
			t.Reset()
		case 'h':
			printHelp()
		case 'q':
			close(quitCh)
			return
		}
	}
}

// switchAlgorithm 切换调度算法，调度器忙时重试留给下一次按键
func switchAlgorithm(t *task.Context, algo scheduler.Algorithm) {
	if !t.Scheduler().SetAlgorithm(algo, t.Lanes()) {
		log.Warnf("scheduler busy, algorithm unchanged")
		return
	}
	fmt.Printf("algorithm: %s\n", algo)
}

func printHelp() {
	fmt.Print(`controls:
  1  shortest-job-first scheduling
  2  multilevel feedback queue scheduling
  3  priority round-robin scheduling
  p  pause / resume (space also works)
  e  dispatch an emergency vehicle
  r  reset simulation state
  h  this help
  q  quit
`)
}

// printSummary 输出结束汇总
func printSummary(t *task.Context) {
	t.LockGlobal()
	m := t.MetricsData().Snapshot()
	t.UnlockGlobal()
	st := t.Detector().Stats()

	fmt.Printf("\n=== summary ===\n")
	fmt.Printf("simulated %s (%d steps)\n", t.Clock(), t.Clock().InternalStep())
	fmt.Printf("vehicles: %d generated, %d processed, %.1f veh/min\n",
		m.TotalVehiclesGenerated, m.TotalVehiclesProcessed, m.VehiclesPerMinute)
	fmt.Printf("avg wait: %.2fs, fairness: %.3f\n", m.AvgWaitTime, m.FairnessIndex)
	fmt.Printf("context switches: %d, invariant violations: %d\n",
		m.ContextSwitches, m.InvariantViolations)
	fmt.Printf("deadlock checks: %d, detected: %d, unsafe states: %d\n",
		st.Checks, st.Detected, st.UnsafeStates)
	for _, snap := range t.Lanes().Snapshot() {
		fmt.Printf("lane %-5s served %3d dropped %d avg wait %.2fs\n",
			entity.LaneName(snap.ID), snap.TotalServed, snap.Overflow, snap.AvgWait)
	}
}
