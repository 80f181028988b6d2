// Package config 提供 nifimcp 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → NIFIMCP_ 前缀环境变量 的顺序叠加，
// Validate 一次性报告全部问题。Reloader 监听配置文件，
// 运行时只应用可热重载的字段（目前为日志级别），其余变更记录为需要重启。
package config
