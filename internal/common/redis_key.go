package common

import "fmt"

func RedisKeyWindowEntryCount(windowDate string) string {
	return fmt.Sprintf("raffle:entrycount:%s", windowDate)
}
