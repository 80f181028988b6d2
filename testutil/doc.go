/*
Package testutil 提供 nifimcp 测试共享的辅助函数。

  - 上下文辅助: TestContext / TestContextWithTimeout，自动注册 Cleanup
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - JSON 辅助: AssertJSONEqual / MustJSON / MustParseJSON

# 子包

  - testutil/fakenifi: 内存中的 NiFi REST 引擎替身（httptest），记录调用次数，
    支持注入故障、修订号冲突与异步请求，供 nifi、tools 与 cmd 测试使用。
*/
package testutil
