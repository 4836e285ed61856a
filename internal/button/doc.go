// Package button 实现按键状态查询与长轮询等待。
//
// 每个请求独立运行一个状态机：POLLING -> {PRESSED, TIMEOUT, ERROR}。
// 所有请求共享同一个 hardware.LineSource，串口上的一行只会被一个请求读到。
// 两个请求同时等待时，一次按键只有先读到的那个请求会返回 PRESSED。
package button
