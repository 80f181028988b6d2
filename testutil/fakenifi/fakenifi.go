// Package fakenifi 提供内存版 NiFi REST 引擎，供测试使用。
//
// 它实现了 nifi 包用到的端点子集：修订号乐观锁、连接队列与 drop request、
// 参数上下文 update-request、about 版本以及故障注入。
package fakenifi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// RootID 根进程组 ID
const RootID = "root"

// 组件类型
const (
	KindProcessGroup      = "process-groups"
	KindProcessor         = "processors"
	KindConnection        = "connections"
	KindInputPort         = "input-ports"
	KindOutputPort        = "output-ports"
	KindControllerService = "controller-services"
	KindParameterContext  = "parameter-contexts"
)

type component struct {
	kind     string
	id       string
	parentID string
	version  int64
	body     map[string]any
}

type failure struct {
	method  string
	path    string
	status  int
	message string
	times   int
}

// Call 记录一次收到的请求
type Call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// Server 内存 NiFi 引擎
type Server struct {
	mu sync.Mutex

	srv        *httptest.Server
	version    string
	aboutFails bool

	components   map[string]*component
	queues       map[string][2]int64
	dropRequests map[string]map[string]any
	updateReqs   map[string]map[string]any
	bulletins    []map[string]any
	failures     []*failure
	calls        []Call
	seq          int
	// DropPolls 为 drop/update request 变为完成前需要的轮询次数
	DropPolls int
}

// New 启动 fake 引擎并在测试结束时关闭
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		version:      "2.0.0",
		components:   make(map[string]*component),
		queues:       make(map[string][2]int64),
		dropRequests: make(map[string]map[string]any),
		updateReqs:   make(map[string]map[string]any),
		DropPolls:    1,
	}
	s.components[RootID] = &component{
		kind: KindProcessGroup,
		id:   RootID,
		body: map[string]any{"id": RootID, "name": "NiFi Flow"},
	}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

// URL 返回 nifi-api 根地址
func (s *Server) URL() string {
	return s.srv.URL + "/nifi-api"
}

// Client 返回连接 fake 引擎的 HTTP 客户端
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// SetVersion 设置 flow/about 返回的版本字符串
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// FailAbout 让 flow/about 始终返回 500
func (s *Server) FailAbout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aboutFails = true
}

// Inject 让匹配 method+path（不含 /nifi-api 前缀）的接下来 times 次请求返回 status
func (s *Server) Inject(method, path string, status int, message string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, path: path, status: status, message: message, times: times})
}

// Calls 返回匹配 method+path 的请求次数；method 为空匹配全部
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if (method == "" || c.Method == method) && c.Path == path {
			n++
		}
	}
	return n
}

// CallsWithPrefix 返回路径以 prefix 开头的 method 请求次数
func (s *Server) CallsWithPrefix(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// LastCall 返回匹配 method+path 的最后一次请求
func (s *Server) LastCall(method, path string) (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].Method == method && s.calls[i].Path == path {
			return s.calls[i], true
		}
	}
	return Call{}, false
}

// =============================================================================
// 数据预置
// =============================================================================

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *Server) add(kind, parentID, prefix string, body map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(kind, parentID, prefix, body)
}

func (s *Server) addLocked(kind, parentID, prefix string, body map[string]any) string {
	id := s.nextID(prefix)
	body["id"] = id
	if parentID != "" {
		body["parentGroupId"] = parentID
	}
	s.components[id] = &component{kind: kind, id: id, parentID: parentID, body: body}
	return id
}

// AddProcessGroup 新增子进程组
func (s *Server) AddProcessGroup(parentID, name string) string {
	return s.add(KindProcessGroup, parentID, "pg", map[string]any{"name": name})
}

// AddProcessor 新增处理器，state 为 RUNNING/STOPPED/DISABLED
func (s *Server) AddProcessor(pgID, name, state string) string {
	return s.add(KindProcessor, pgID, "proc", map[string]any{
		"name":             name,
		"type":             "org.apache.nifi.processors.standard.GenerateFlowFile",
		"state":            state,
		"validationStatus": "VALID",
		"config": map[string]any{
			"properties":         map[string]any{},
			"schedulingStrategy": "TIMER_DRIVEN",
			"schedulingPeriod":   "1 min",
		},
	})
}

// AddConnection 新增连接并设置队列
func (s *Server) AddConnection(pgID, sourceID, destID string, queued, bytes int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.addLocked(KindConnection, pgID, "conn", map[string]any{
		"name":                        "",
		"source":                      map[string]any{"id": sourceID, "type": "PROCESSOR", "groupId": pgID},
		"destination":                 map[string]any{"id": destID, "type": "PROCESSOR", "groupId": pgID},
		"selectedRelationships":       []any{"success"},
		"backPressureObjectThreshold": 10000,
	})
	s.queues[id] = [2]int64{queued, bytes}
	return id
}

// AddPort 新增端口，kind 为 KindInputPort 或 KindOutputPort
func (s *Server) AddPort(kind, pgID, name string) string {
	return s.add(kind, pgID, "port", map[string]any{"name": name, "state": "STOPPED"})
}

// AddControllerService 新增控制器服务，pgID 为空表示控制器级别
func (s *Server) AddControllerService(pgID, typ, name, state string) string {
	return s.add(KindControllerService, pgID, "cs", map[string]any{
		"name":             name,
		"type":             typ,
		"state":            state,
		"validationStatus": "VALID",
		"properties":       map[string]any{},
	})
}

// AddParameterContext 新增参数上下文，params 为 name -> value
func (s *Server) AddParameterContext(name string, params map[string]string, sensitive ...string) string {
	sens := make(map[string]bool, len(sensitive))
	for _, n := range sensitive {
		sens[n] = true
	}
	list := make([]any, 0, len(params))
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		list = append(list, map[string]any{"parameter": map[string]any{
			"name": n, "value": params[n], "sensitive": sens[n],
		}})
	}
	return s.add(KindParameterContext, "", "ctx", map[string]any{"name": name, "parameters": list})
}

// AddBulletin 新增公告
func (s *Server) AddBulletin(groupID, sourceID, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.bulletins = append(s.bulletins, map[string]any{
		"id":       s.seq,
		"groupId":  groupID,
		"sourceId": sourceID,
		"bulletin": map[string]any{
			"id":       s.seq,
			"groupId":  groupID,
			"sourceId": sourceID,
			"level":    level,
			"message":  message,
		},
	})
}

// SetField 直接修改组件字段（不改变修订号）
func (s *Server) SetField(id, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.components[id]; ok {
		c.body[key] = value
	}
}

// SetQueue 设置连接队列
func (s *Server) SetQueue(id string, queued, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[id] = [2]int64{queued, bytes}
}

// Revision 返回组件当前修订号
func (s *Server) Revision(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.components[id]; ok {
		return c.version
	}
	return -1
}

// Component 返回组件字段副本
func (s *Server) Component(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[id]
	if !ok {
		return nil
	}
	return clone(c.body)
}

// Exists 判断组件是否存在
func (s *Server) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.components[id]
	return ok
}

// Queue 返回连接队列 (flowFiles, bytes)
func (s *Server) Queue(id string) (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[id]
	return q[0], q[1]
}

// =============================================================================
// 路由
// =============================================================================

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	p := func(pattern string) string {
		method, path, _ := strings.Cut(pattern, " ")
		return method + " /nifi-api/" + path
	}

	mux.HandleFunc(p("GET flow/about"), s.handleAbout)
	mux.HandleFunc(p("GET flow/process-groups/{id}"), s.handleGroupFlow)
	mux.HandleFunc(p("PUT flow/process-groups/{id}"), s.handleScheduleGroup)
	mux.HandleFunc(p("GET flow/process-groups/{id}/controller-services"), s.handleListServices)
	mux.HandleFunc(p("PUT flow/process-groups/{id}/controller-services"), s.handleActivateServices)
	mux.HandleFunc(p("GET flow/controller/controller-services"), s.handleListServices)
	mux.HandleFunc(p("GET flow/bulletin-board"), s.handleBulletins)
	mux.HandleFunc(p("GET flow/search-results"), s.handleSearch)
	mux.HandleFunc(p("GET flow/processor-types"), s.handleProcessorTypes)
	mux.HandleFunc(p("GET flow/parameter-contexts"), s.handleListKind(KindParameterContext, "parameterContexts"))

	for _, kind := range []string{KindProcessGroup, KindProcessor, KindConnection, KindInputPort, KindOutputPort, KindControllerService, KindParameterContext} {
		mux.HandleFunc(p("GET "+kind+"/{id}"), s.handleGet(kind))
		mux.HandleFunc(p("DELETE "+kind+"/{id}"), s.handleDelete(kind))
		if kind != KindParameterContext {
			mux.HandleFunc(p("PUT "+kind+"/{id}"), s.handleUpdate(kind))
		}
	}
	for _, kind := range []string{KindProcessor, KindInputPort, KindOutputPort, KindControllerService} {
		mux.HandleFunc(p("PUT "+kind+"/{id}/run-status"), s.handleRunStatus(kind))
	}

	for kind, key := range map[string]string{
		KindProcessGroup:      "processGroups",
		KindProcessor:         "processors",
		KindConnection:        "connections",
		KindInputPort:         "inputPorts",
		KindOutputPort:        "outputPorts",
		KindControllerService: "controllerServices",
	} {
		mux.HandleFunc(p("GET process-groups/{id}/"+kind), s.handleListChildren(kind, key))
		mux.HandleFunc(p("POST process-groups/{id}/"+kind), s.handleCreate(kind))
	}
	mux.HandleFunc(p("POST parameter-contexts"), s.handleCreate(KindParameterContext))

	mux.HandleFunc(p("DELETE processors/{id}/threads"), s.handleTerminate)

	mux.HandleFunc(p("POST flowfile-queues/{id}/drop-requests"), s.handleDropCreate)
	mux.HandleFunc(p("GET flowfile-queues/{id}/drop-requests/{rid}"), s.handleDropGet)
	mux.HandleFunc(p("DELETE flowfile-queues/{id}/drop-requests/{rid}"), s.handleDropDelete)

	mux.HandleFunc(p("POST parameter-contexts/{id}/update-requests"), s.handleParamUpdateCreate)
	mux.HandleFunc(p("GET parameter-contexts/{id}/update-requests/{rid}"), s.handleParamUpdateGet)
	mux.HandleFunc(p("DELETE parameter-contexts/{id}/update-requests/{rid}"), s.handleParamUpdateDelete)

	return s.record(mux)
}

// record 记录请求并应用故障注入
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/nifi-api/")
		call := Call{Method: r.Method, Path: path, Query: r.URL.RawQuery}
		if r.Body != nil && r.ContentLength != 0 {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				call.Body = body
				r = withBody(r, body)
			}
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		var inject *failure
		for _, f := range s.failures {
			if f.times > 0 && f.method == r.Method && f.path == path {
				f.times--
				inject = f
				break
			}
		}
		s.mu.Unlock()

		if inject != nil {
			http.Error(w, inject.message, inject.status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// 处理器
// =============================================================================

func (s *Server) handleAbout(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aboutFails {
		http.Error(w, "about unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"about": map[string]any{"title": "NiFi", "version": s.version}})
}

func (s *Server) resolve(id string) string {
	if id == "root" {
		return RootID
	}
	return id
}

func (s *Server) handleGroupFlow(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolve(r.PathValue("id"))
	pg, ok := s.components[id]
	if !ok || pg.kind != KindProcessGroup {
		notFound(w, id)
		return
	}
	flow := map[string]any{
		"processGroups": s.childrenLocked(KindProcessGroup, id),
		"processors":    s.childrenLocked(KindProcessor, id),
		"connections":   s.childrenLocked(KindConnection, id),
		"inputPorts":    s.childrenLocked(KindInputPort, id),
		"outputPorts":   s.childrenLocked(KindOutputPort, id),
	}
	writeJSON(w, http.StatusOK, map[string]any{"processGroupFlow": map[string]any{
		"id":            id,
		"parentGroupId": pg.parentID,
		"breadcrumb":    map[string]any{"breadcrumb": map[string]any{"id": id, "name": pg.body["name"]}},
		"flow":          flow,
	}})
}

func (s *Server) handleScheduleGroup(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	state, _ := body["state"].(string)
	if state != "RUNNING" && state != "STOPPED" {
		http.Error(w, "state must be RUNNING or STOPPED", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolve(r.PathValue("id"))
	for _, c := range s.components {
		if c.kind == KindProcessor && c.parentID == id && c.body["state"] != "DISABLED" {
			if state == "RUNNING" && c.body["validationStatus"] == "INVALID" {
				continue
			}
			if c.body["state"] != state {
				c.body["state"] = state
				c.version++
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": state})
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if id != "" {
		id = s.resolve(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"controllerServices": s.childrenLocked(KindControllerService, id)})
}

func (s *Server) handleActivateServices(w http.ResponseWriter, r *http.Request) {
	state, _ := bodyOf(r)["state"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolve(r.PathValue("id"))
	for _, c := range s.components {
		if c.kind == KindControllerService && c.parentID == id && c.body["state"] != state {
			c.body["state"] = state
			c.version++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": state})
}

func (s *Server) handleBulletins(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groupID := r.URL.Query().Get("groupId")
	after, _ := strconv.Atoi(r.URL.Query().Get("after"))
	out := make([]any, 0, len(s.bulletins))
	for _, b := range s.bulletins {
		if groupID != "" && b["groupId"] != groupID {
			continue
		}
		if id, _ := b["id"].(int); id <= after {
			continue
		}
		out = append(out, b)
	}
	writeJSON(w, http.StatusOK, map[string]any{"bulletinBoard": map[string]any{"bulletins": out}})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(r.URL.Query().Get("q"))
	results := map[string][]any{}
	for _, c := range s.sortedLocked() {
		name, _ := c.body["name"].(string)
		if q == "" || !strings.Contains(strings.ToLower(name), q) {
			continue
		}
		key := searchKeys[c.kind]
		results[key] = append(results[key], map[string]any{"id": c.id, "name": name, "groupId": c.parentID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"searchResultsDTO": results})
}

var searchKeys = map[string]string{
	KindProcessGroup:      "processGroupResults",
	KindProcessor:         "processorResults",
	KindConnection:        "connectionResults",
	KindInputPort:         "inputPortResults",
	KindOutputPort:        "outputPortResults",
	KindControllerService: "controllerServiceNodeResults",
	KindParameterContext:  "parameterContextResults",
}

func (s *Server) handleProcessorTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"processorTypes": []any{
		map[string]any{"type": "org.apache.nifi.processors.standard.GenerateFlowFile"},
		map[string]any{"type": "org.apache.nifi.processors.standard.LogAttribute"},
	}})
}

func (s *Server) handleListKind(kind, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]any, 0)
		for _, c := range s.sortedLocked() {
			if c.kind == kind {
				out = append(out, s.entityLocked(c))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{key: out})
	}
}

func (s *Server) handleListChildren(kind, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id := s.resolve(r.PathValue("id"))
		if pg, ok := s.components[id]; !ok || pg.kind != KindProcessGroup {
			notFound(w, id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: s.childrenLocked(kind, id)})
	}
}

func (s *Server) handleGet(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.lookupLocked(kind, r.PathValue("id"))
		if !ok {
			notFound(w, r.PathValue("id"))
			return
		}
		writeJSON(w, http.StatusOK, s.entityLocked(c))
	}
}

func (s *Server) handleCreate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyOf(r)
		if revisionOf(body) != 0 {
			http.Error(w, "A revision of 0 must be specified when creating a new component.", http.StatusBadRequest)
			return
		}
		comp, _ := body["component"].(map[string]any)
		if comp == nil {
			http.Error(w, "Component details must be specified.", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		parentID := ""
		if kind != KindParameterContext {
			parentID = s.resolve(r.PathValue("id"))
			if pg, ok := s.components[parentID]; !ok || pg.kind != KindProcessGroup {
				notFound(w, parentID)
				return
			}
		}

		comp = clone(comp)
		switch kind {
		case KindProcessor:
			comp["state"] = "STOPPED"
			comp["validationStatus"] = "VALID"
			if _, ok := comp["config"]; !ok {
				comp["config"] = map[string]any{"properties": map[string]any{}}
			}
		case KindInputPort, KindOutputPort:
			comp["state"] = "STOPPED"
		case KindControllerService:
			comp["state"] = "DISABLED"
			comp["validationStatus"] = "VALID"
		case KindConnection:
			for _, end := range []string{"source", "destination"} {
				ref, _ := comp[end].(map[string]any)
				refID, _ := ref["id"].(string)
				if _, ok := s.components[refID]; !ok {
					http.Error(w, fmt.Sprintf("Unable to find the %s component with id '%s'.", end, refID), http.StatusBadRequest)
					return
				}
			}
		case KindParameterContext:
			comp["parameters"] = normalizeParams(comp["parameters"])
		}

		id := s.addLocked(kind, parentID, strings.TrimSuffix(kind, "s"), comp)
		if kind == KindConnection {
			s.queues[id] = [2]int64{0, 0}
		}
		writeJSON(w, http.StatusCreated, s.entityLocked(s.components[id]))
	}
}

func (s *Server) handleUpdate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyOf(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.lookupLocked(kind, r.PathValue("id"))
		if !ok {
			notFound(w, r.PathValue("id"))
			return
		}
		if !s.checkRevisionLocked(w, c, revisionOf(body)) {
			return
		}
		comp, _ := body["component"].(map[string]any)
		if kind == KindProcessor && c.body["state"] == "RUNNING" {
			http.Error(w, fmt.Sprintf("%s is not stopped.", c.id), http.StatusConflict)
			return
		}
		merge(c.body, comp)
		if ref, ok := comp["parameterContext"].(map[string]any); ok && ref["id"] == nil {
			delete(c.body, "parameterContext")
		}
		c.body["id"] = c.id
		c.version++
		writeJSON(w, http.StatusOK, s.entityLocked(c))
	}
}

func (s *Server) handleDelete(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
		if err != nil {
			http.Error(w, "version query parameter is required", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.lookupLocked(kind, r.PathValue("id"))
		if !ok {
			notFound(w, r.PathValue("id"))
			return
		}
		if !s.checkRevisionLocked(w, c, version) {
			return
		}
		if kind == KindConnection {
			if q := s.queues[c.id]; q[0] > 0 {
				http.Error(w, fmt.Sprintf("Cannot delete connection because queue %s contains %d FlowFiles", c.id, q[0]), http.StatusConflict)
				return
			}
		}
		if kind == KindProcessor && c.body["state"] == "RUNNING" {
			http.Error(w, fmt.Sprintf("Processor %s is currently running", c.id), http.StatusConflict)
			return
		}
		entity := s.entityLocked(c)
		delete(s.components, c.id)
		delete(s.queues, c.id)
		writeJSON(w, http.StatusOK, entity)
	}
}

func (s *Server) handleRunStatus(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := bodyOf(r)
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.lookupLocked(kind, r.PathValue("id"))
		if !ok {
			notFound(w, r.PathValue("id"))
			return
		}
		if !s.checkRevisionLocked(w, c, revisionOf(body)) {
			return
		}
		state, _ := body["state"].(string)
		c.body["state"] = state
		c.version++
		writeJSON(w, http.StatusOK, s.entityLocked(c))
	}
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookupLocked(KindProcessor, r.PathValue("id"))
	if !ok {
		notFound(w, r.PathValue("id"))
		return
	}
	if c.body["state"] == "RUNNING" {
		http.Error(w, "Processor must be stopped before terminating threads", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.entityLocked(c))
}

func (s *Server) handleDropCreate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookupLocked(KindConnection, r.PathValue("id"))
	if !ok {
		notFound(w, r.PathValue("id"))
		return
	}
	q := s.queues[c.id]
	rid := s.nextID("drop")
	req := map[string]any{
		"id":               rid,
		"uri":              s.URL() + "/flowfile-queues/" + c.id + "/drop-requests/" + rid,
		"finished":         false,
		"percentCompleted": 0,
		"originalCount":    q[0],
		"originalSize":     q[1],
		"droppedCount":     int64(0),
		"droppedSize":      int64(0),
		"polls":            s.DropPolls,
		"connectionId":     c.id,
	}
	s.dropRequests[rid] = req
	writeJSON(w, http.StatusAccepted, map[string]any{"dropRequest": publicRequest(req)})
}

func (s *Server) handleDropGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.dropRequests[r.PathValue("rid")]
	if !ok {
		notFound(w, r.PathValue("rid"))
		return
	}
	if polls, _ := req["polls"].(int); polls > 1 {
		req["polls"] = polls - 1
	} else if req["finished"] != true {
		connID, _ := req["connectionId"].(string)
		q := s.queues[connID]
		req["droppedCount"] = q[0]
		req["droppedSize"] = q[1]
		req["finished"] = true
		req["percentCompleted"] = 100
		s.queues[connID] = [2]int64{0, 0}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dropRequest": publicRequest(req)})
}

func (s *Server) handleDropDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.dropRequests[r.PathValue("rid")]
	if !ok {
		notFound(w, r.PathValue("rid"))
		return
	}
	delete(s.dropRequests, r.PathValue("rid"))
	writeJSON(w, http.StatusOK, map[string]any{"dropRequest": publicRequest(req)})
}

func (s *Server) handleParamUpdateCreate(w http.ResponseWriter, r *http.Request) {
	body := bodyOf(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lookupLocked(KindParameterContext, r.PathValue("id"))
	if !ok {
		notFound(w, r.PathValue("id"))
		return
	}
	if !s.checkRevisionLocked(w, c, revisionOf(body)) {
		return
	}
	comp, _ := body["component"].(map[string]any)
	rid := s.nextID("update")
	req := map[string]any{
		"requestId":        rid,
		"complete":         false,
		"polls":            s.DropPolls,
		"contextId":        c.id,
		"component":        comp,
		"percentCompleted": 0,
	}
	if name, _ := comp["name"].(string); strings.HasPrefix(name, "fail:") {
		req["failureReason"] = "Parameter update rejected: " + strings.TrimPrefix(name, "fail:")
	}
	s.updateReqs[rid] = req
	writeJSON(w, http.StatusOK, map[string]any{"request": publicRequest(req)})
}

func (s *Server) handleParamUpdateGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.updateReqs[r.PathValue("rid")]
	if !ok {
		notFound(w, r.PathValue("rid"))
		return
	}
	if polls, _ := req["polls"].(int); polls > 1 {
		req["polls"] = polls - 1
	} else if req["complete"] != true {
		req["complete"] = true
		req["percentCompleted"] = 100
		if _, failed := req["failureReason"]; !failed {
			s.applyParamUpdateLocked(req)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": publicRequest(req)})
}

func (s *Server) handleParamUpdateDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.updateReqs[r.PathValue("rid")]
	if !ok {
		notFound(w, r.PathValue("rid"))
		return
	}
	delete(s.updateReqs, r.PathValue("rid"))
	writeJSON(w, http.StatusOK, map[string]any{"request": publicRequest(req)})
}

// applyParamUpdateLocked 按名称合并参数；无 value 字段的参数被删除
func (s *Server) applyParamUpdateLocked(req map[string]any) {
	id, _ := req["contextId"].(string)
	c, ok := s.components[id]
	if !ok {
		return
	}
	comp, _ := req["component"].(map[string]any)
	if name, ok := comp["name"].(string); ok {
		c.body["name"] = name
	}
	if desc, ok := comp["description"]; ok {
		c.body["description"] = desc
	}

	existing, _ := c.body["parameters"].([]any)
	order := make([]string, 0, len(existing))
	byName := make(map[string]map[string]any, len(existing))
	for _, item := range existing {
		p := paramOf(item)
		name, _ := p["name"].(string)
		order = append(order, name)
		byName[name] = p
	}

	updates, _ := comp["parameters"].([]any)
	for _, item := range updates {
		p := paramOf(item)
		name, _ := p["name"].(string)
		if _, hasValue := p["value"]; !hasValue {
			delete(byName, name)
			continue
		}
		if _, ok := byName[name]; !ok {
			order = append(order, name)
		}
		byName[name] = clone(p)
	}

	merged := make([]any, 0, len(byName))
	for _, name := range order {
		if p, ok := byName[name]; ok {
			merged = append(merged, map[string]any{"parameter": p})
		}
	}
	c.body["parameters"] = merged
	c.version++
}

// =============================================================================
// 内部辅助
// =============================================================================

func (s *Server) lookupLocked(kind, id string) (*component, bool) {
	id = s.resolve(id)
	c, ok := s.components[id]
	if !ok || c.kind != kind {
		return nil, false
	}
	return c, true
}

func (s *Server) checkRevisionLocked(w http.ResponseWriter, c *component, version int64) bool {
	if version == c.version {
		return true
	}
	http.Error(w, fmt.Sprintf("Error: [%d, null, %s] is not the most up-to-date revision. This component appears to have been modified", version, c.id), http.StatusBadRequest)
	return false
}

func (s *Server) sortedLocked() []*component {
	out := make([]*component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Server) childrenLocked(kind, parentID string) []any {
	out := make([]any, 0)
	for _, c := range s.sortedLocked() {
		if c.kind == kind && c.parentID == parentID && c.id != RootID {
			out = append(out, s.entityLocked(c))
		}
	}
	return out
}

func (s *Server) entityLocked(c *component) map[string]any {
	entity := map[string]any{
		"id":        c.id,
		"revision":  map[string]any{"version": c.version},
		"component": clone(c.body),
	}
	switch c.kind {
	case KindConnection:
		q := s.queues[c.id]
		threshold, _ := toInt64(c.body["backPressureObjectThreshold"])
		percent := int64(0)
		if threshold > 0 {
			percent = q[0] * 100 / threshold
		}
		entity["status"] = map[string]any{"aggregateSnapshot": map[string]any{
			"flowFilesQueued": q[0],
			"bytesQueued":     q[1],
			"queued":          fmt.Sprintf("%d (%d bytes)", q[0], q[1]),
			"percentUseCount": percent,
		}}
	case KindProcessor:
		entity["status"] = map[string]any{"runStatus": c.body["state"]}
	}
	return entity
}

func publicRequest(req map[string]any) map[string]any {
	out := clone(req)
	delete(out, "polls")
	delete(out, "connectionId")
	delete(out, "contextId")
	delete(out, "component")
	return out
}

func normalizeParams(v any) []any {
	items, _ := v.([]any)
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{"parameter": clone(paramOf(item))})
	}
	return out
}

func paramOf(item any) map[string]any {
	m, _ := item.(map[string]any)
	if p, ok := m["parameter"].(map[string]any); ok {
		return p
	}
	return m
}

// merge 按引擎的部分更新规则合并：null 字段被跳过，properties 中的 null 删除该属性
func merge(dst, src map[string]any) {
	for k, v := range src {
		switch sub := v.(type) {
		case nil:
			continue
		case map[string]any:
			if k == "properties" {
				mergeProperties(dst, sub)
				continue
			}
			if cur, ok := dst[k].(map[string]any); ok {
				merge(cur, sub)
				continue
			}
			dst[k] = clone(sub)
		default:
			dst[k] = v
		}
	}
}

func mergeProperties(dst, src map[string]any) {
	cur, ok := dst["properties"].(map[string]any)
	if !ok {
		cur = map[string]any{}
		dst["properties"] = cur
	}
	for name, v := range src {
		if v == nil {
			delete(cur, name)
			continue
		}
		cur[name] = v
	}
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

func revisionOf(body map[string]any) int64 {
	rev, _ := body["revision"].(map[string]any)
	v, _ := toInt64(rev["version"])
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

type bodyKey struct{}

func withBody(r *http.Request, body map[string]any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
}

func bodyOf(r *http.Request) map[string]any {
	if body, ok := r.Context().Value(bodyKey{}).(map[string]any); ok {
		return body
	}
	return map[string]any{}
}

func notFound(w http.ResponseWriter, id string) {
	http.Error(w, fmt.Sprintf("Unable to find component with id '%s'.", id), http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
