/*
包 audit 记录变更类工具调用的审计轨迹。

Recorder 实现 tools.Auditor：每次写类或破坏性工具调用结束后，构造一条 Entry
（工具名、已脱敏参数、调用方 subject、请求 ID、结果与错误码、耗时）并非阻塞入队，
后台协程写入 Sink。

两种 Sink：

  - DBSink：经 database.PoolManager 写入 mutation_audit 表，支持 postgres、mysql、sqlite，
    表结构由 migration 包管理。
  - StreamSink：以 XADD 追加到 Redis Stream，按 stream_max_len 近似裁剪。

读类工具不产生审计记录。
*/
package audit
