package service

import (
	"strings"
	"time"
)

// dateFormat 全局统一的日期格式
// 日期一律以 YYYY-MM-DD 字符串存储和比较，字符串序即时间序
const dateFormat = "2006-01-02"

// weekdayTokens 按 time.Weekday 的顺序排列（周日为 0）
var weekdayTokens = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Today 返回本地时区的当天日期
func Today() string {
	return time.Now().In(time.Local).Format(dateFormat)
}

// ParseDate 校验并解析 YYYY-MM-DD 日期
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, strings.TrimSpace(value), time.Local)
}

// IsValidDate 判断字符串是否为合法日期
func IsValidDate(value string) bool {
	_, err := ParseDate(value)
	return err == nil
}

func addDays(date string, days int) string {
	t, err := ParseDate(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(dateFormat)
}

func weekdayToken(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return ""
	}
	return weekdayTokens[int(t.Weekday())]
}
