package deadlock

import "github.com/sirupsen/logrus"

// log 死锁检测模块的日志记录器
var log = logrus.WithField("module", "deadlock")
