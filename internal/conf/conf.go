// Package conf 定义服务的启动配置。
//
// 配置由 kratos config 从 configs/config.yaml 扫描到这些结构体中，
// 时长字段支持 "30s" / "5m" 这样的字符串写法。
package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration 支持从配置字符串（如 "30s"）解析的时长类型
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Second)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}

// AsDuration 转换为 time.Duration
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Bootstrap 启动配置根节点
type Bootstrap struct {
	Server *Server `json:"server"`
	Data   *Data   `json:"data"`
	Juice  *Juice  `json:"juice"`
}

// Server 服务端配置
type Server struct {
	Http *HTTP `json:"http"`
}

// HTTP HTTP 服务配置
type HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
	Rocketmq *Rocketmq `json:"rocketmq"`
}

// Database 数据库配置
type Database struct {
	Driver string `json:"driver"`
	Source string `json:"source"`
}

// Redis Redis 配置
type Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	Db           int       `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Rocketmq RocketMQ 配置（支付服务商事件投递，可选）
type Rocketmq struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	Topic       string   `json:"topic"`
	RetryTimes  int      `json:"retry_times"`
}

// Juice 账本与结算配置
type Juice struct {
	// SettlementDelay 充值入账延迟（0 表示即时入账）
	SettlementDelay Duration `json:"settlement_delay"`
	// CashOutHoldDelay 提现持有期（反欺诈窗口）
	CashOutHoldDelay Duration `json:"cash_out_hold_delay"`
	// MaxRetries 结算最大重试次数
	MaxRetries int `json:"max_retries"`
	// BatchSize 批处理单次最大记录数
	BatchSize int `json:"batch_size"`
	// RetentionWindow 余额保留窗口，超过未活跃即过期清零
	RetentionWindow Duration `json:"retention_window"`
	// DefaultChainId 默认结算链（手续费最低的链）
	DefaultChainId int64 `json:"default_chain_id"`
	// Chains 各链的出账服务配置
	Chains []*Chain `json:"chains"`
	// PriceFeed 价格源配置
	PriceFeed *PriceFeed `json:"price_feed"`
}

// Chain 单条链的出账服务配置
type Chain struct {
	ChainId  int64    `json:"chain_id"`
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Timeout  Duration `json:"timeout"`
}

// PriceFeed 价格源配置
type PriceFeed struct {
	Endpoint string   `json:"endpoint"`
	Timeout  Duration `json:"timeout"`
	// MaxQuoteAge 报价最大可用时长，超过视为过期
	MaxQuoteAge Duration `json:"max_quote_age"`
	// RateMin / RateMax 汇率合理区间（十进制字符串）
	RateMin string `json:"rate_min"`
	RateMax string `json:"rate_max"`
}
