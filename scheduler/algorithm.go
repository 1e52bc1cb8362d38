package scheduler

import (
	"fmt"
	"strings"
)

// Algorithm 调度算法类型
type Algorithm int32

const (
	// AlgorithmSJF 最短作业优先：选择预计处理时间最短的就绪车道
	AlgorithmSJF Algorithm = iota
	// AlgorithmMultilevelFeedback 多级反馈队列：按等待时间分层，层内轮转
	AlgorithmMultilevelFeedback
	// AlgorithmPriorityRR 优先级轮转：同优先级车道间轮转调度
	AlgorithmPriorityRR
	// AlgorithmSRTF 最短剩余时间优先：SJF的抢占式变体
	AlgorithmSRTF
	// AlgorithmSJFAging 带老化的SJF：等待时间越长分数越低，防止饥饿
	AlgorithmSJFAging
	// AlgorithmSJFEnhanced 增强SJF：综合队列长度、等待时间与历史平均等待
	AlgorithmSJFEnhanced
	// AlgorithmSJFPredictive 预测SJF：用历史吞吐量估计单车服务时间
	AlgorithmSJFPredictive
)

var algorithmNames = map[Algorithm]string{
	AlgorithmSJF:                "sjf",
	AlgorithmMultilevelFeedback: "multilevel",
	AlgorithmPriorityRR:         "priority",
	AlgorithmSRTF:               "srtf",
	AlgorithmSJFAging:           "sjf-aging",
	AlgorithmSJFEnhanced:        "sjf-enhanced",
	AlgorithmSJFPredictive:      "sjf-predictive",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int32(a))
}

// ParseAlgorithm 解析算法名称，大小写不敏感
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for algo, n := range algorithmNames {
		if n == name {
			return algo, nil
		}
	}
	return AlgorithmSJF, fmt.Errorf("unknown scheduling algorithm %q", name)
}
