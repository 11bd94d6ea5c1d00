// Package rules bundles built-in rule sets for common JVM injection
// classes. Each constructor returns plain data; callers register the sets
// they want on a data.Provider.
package rules

import "github.com/vlsergey/secan4go/data"

// SQLInjection returns sink rules for the JDBC query surface. Parameter
// indices count the receiver as 0, so index 1 is the query string.
func SQLInjection() []data.MethodRule {
	return []data.MethodRule{
		{Class: "java/sql/Connection", Method: "prepareStatement", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Connection", Method: "prepareCall", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Connection", Method: "nativeSQL", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Statement", Method: "execute", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Statement", Method: "executeQuery", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Statement", Method: "executeUpdate", Params: map[int]string{1: "sink"}},
		{Class: "java/sql/Statement", Method: "addBatch", Params: map[int]string{1: "sink"}},
		{Class: "javax/persistence/EntityManager", Method: "createQuery", Params: map[int]string{1: "sink"}},
		{Class: "javax/persistence/EntityManager", Method: "createNativeQuery", Params: map[int]string{1: "sink"}},
	}
}

// CommandInjection returns sink rules for process execution.
func CommandInjection() []data.MethodRule {
	return []data.MethodRule{
		{Class: "java/lang/Runtime", Method: "exec", Params: map[int]string{1: "sink"}},
		{Class: "java/lang/ProcessBuilder", Method: ConstructorName, Params: map[int]string{1: "sink"}},
		{Class: "java/lang/ProcessBuilder", Method: "command", Params: map[int]string{1: "sink"}},
	}
}

// ServletUserInput returns source rules for the servlet request surface:
// everything read off an HTTP request is untrusted.
func ServletUserInput() []data.MethodRule {
	return []data.MethodRule{
		{Class: "javax/servlet/ServletRequest", Method: "getParameter", Result: "source"},
		{Class: "javax/servlet/ServletRequest", Method: "getParameterValues", Result: "source"},
		{Class: "javax/servlet/http/HttpServletRequest", Method: "getParameter", Result: "source"},
		{Class: "javax/servlet/http/HttpServletRequest", Method: "getHeader", Result: "source"},
		{Class: "javax/servlet/http/HttpServletRequest", Method: "getQueryString", Result: "source"},
		{Class: "javax/servlet/http/HttpServletRequest", Method: "getCookies", Result: "source"},
		{Class: "javax/servlet/http/HttpServletRequest", Method: "getRequestURI", Result: "source"},
	}
}

// ConstructorName is the rule-side spelling of a constructor target.
const ConstructorName = "<init>"

// Default combines every built-in rule set.
func Default() []data.MethodRule {
	var out []data.MethodRule
	out = append(out, SQLInjection()...)
	out = append(out, CommandInjection()...)
	out = append(out, ServletUserInput()...)
	return out
}
